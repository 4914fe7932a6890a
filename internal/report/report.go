package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"netpol-verify/internal/orchestrator"
)

// ProbeJSON is one connectivity check in the report, with enough evidence
// to diagnose a divergence without re-running.
type ProbeJSON struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Protocol   string `json:"protocol"`
	Port       int    `json:"port"`
	Expected   string `json:"expected"`
	Observed   string `json:"observed"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	Detail     string `json:"detail,omitempty"`
}

// ScenarioJSON is one scenario's outcome in the report.
type ScenarioJSON struct {
	ID                   string      `json:"id"`
	Verdict              string      `json:"verdict"`
	FailureReasons       []string    `json:"failure_reasons,omitempty"`
	Probes               []ProbeJSON `json:"probes"`
	StartTime            string      `json:"start_time"`
	EndTime              string      `json:"end_time"`
	ExecutionTimeSeconds float64     `json:"execution_time_seconds"`
}

// ExecutionInfoJSON carries run metadata.
type ExecutionInfoJSON struct {
	Timestamp        string `json:"timestamp"`
	Filename         string `json:"filename"`
	KubeconfigSource string `json:"kubeconfig_source"`
	Parallelism      int    `json:"parallelism"`
	ScenarioCount    int    `json:"scenario_count"`
}

// SummaryJSON is the machine-readable rollup.
type SummaryJSON struct {
	Total          int     `json:"total"`
	Passed         int     `json:"passed"`
	Failed         int     `json:"failed"`
	Skipped        int     `json:"skipped"`
	PassRate       float64 `json:"pass_rate"`
	OverallStatus  string  `json:"overall_status"`
	CompletionTime string  `json:"completion_time"`
}

// Report is the complete machine-readable output of a batch run.
type Report struct {
	ExecutionInfo ExecutionInfoJSON `json:"execution_info"`
	Scenarios     []ScenarioJSON    `json:"scenarios"`
	Summary       SummaryJSON       `json:"summary"`
}

// Build assembles a Report from the aggregator's view of the run.
func Build(kubeconfigSource string, parallelism int, results []orchestrator.ScenarioResult, summary orchestrator.Summary, startedAt, endedAt time.Time) Report {
	scenarios := make([]ScenarioJSON, 0, len(results))
	for _, result := range results {
		probes := make([]ProbeJSON, 0, len(result.ProbeResults))
		for _, pr := range result.ProbeResults {
			probes = append(probes, ProbeJSON{
				From:       pr.Probe.From.String(),
				To:         pr.Probe.Destination(),
				Protocol:   string(pr.Probe.Protocol),
				Port:       pr.Probe.Port,
				Expected:   string(pr.Probe.Expect),
				Observed:   string(pr.Observed),
				ExitCode:   pr.ExitCode,
				DurationMs: pr.Duration.Milliseconds(),
				Detail:     pr.Detail,
			})
		}
		scenarios = append(scenarios, ScenarioJSON{
			ID:                   result.ScenarioID,
			Verdict:              string(result.Verdict),
			FailureReasons:       result.FailureReasons,
			Probes:               probes,
			StartTime:            result.StartedAt.Format(time.RFC3339),
			EndTime:              result.EndedAt.Format(time.RFC3339),
			ExecutionTimeSeconds: result.EndedAt.Sub(result.StartedAt).Seconds(),
		})
	}

	overallStatus := "PASSED"
	if !summary.AllPassed() {
		overallStatus = "FAILED"
	}

	return Report{
		ExecutionInfo: ExecutionInfoJSON{
			Timestamp:        startedAt.Format(time.RFC3339),
			KubeconfigSource: kubeconfigSource,
			Parallelism:      parallelism,
			ScenarioCount:    len(results),
		},
		Scenarios: scenarios,
		Summary: SummaryJSON{
			Total:          summary.Total,
			Passed:         summary.Passed,
			Failed:         summary.Failed,
			Skipped:        summary.Skipped,
			PassRate:       summary.PassRate,
			OverallStatus:  overallStatus,
			CompletionTime: endedAt.Format(time.RFC3339),
		},
	}
}

// Save writes the report to a timestamped JSON file under dir, creating the
// directory if needed, and returns the full path.
func Save(report Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %v", err)
	}

	filename := fmt.Sprintf("netpol-verify-results-%s.json", time.Now().Format("20060102-150405"))
	report.ExecutionInfo.Filename = filename
	fullPath := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %v", err)
	}
	if err := os.WriteFile(fullPath, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file %s: %v", fullPath, err)
	}
	return fullPath, nil
}
