package scenario

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// Load reads a single scenario from a YAML file, applies defaults and
// validates it.
func Load(path string) (Scenario, error) {
	var s Scenario

	data, err := os.ReadFile(path)
	if err != nil {
		return s, errors.Wrapf(err, "unable to read scenario file %s", path)
	}
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return s, errors.Wrapf(err, "unable to parse scenario file %s", path)
	}

	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return s, errors.Wrapf(err, "invalid scenario in %s", path)
	}
	return s, nil
}

// LoadPath loads scenarios from a file or, for a directory, from every
// .yaml/.yml file in it (sorted by name). Scenario ids must be unique across
// the loaded set.
func LoadPath(path string) ([]Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to stat %s", path)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read scenario directory %s", path)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, filepath.Join(path, entry.Name()))
			}
		}
	} else {
		files = []string{path}
	}

	seen := map[string]string{}
	var scenarios []Scenario
	for _, file := range files {
		s, err := Load(file)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.ID]; ok {
			return nil, errors.Errorf("duplicate scenario id %q in %s (already defined in %s)", s.ID, file, prev)
		}
		seen[s.ID] = file
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}
