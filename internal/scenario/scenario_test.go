package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validScenario() Scenario {
	return Scenario{
		ID: "baseline",
		Namespaces: []NamespaceSpec{
			{Name: "ns1"},
		},
		Pods: []PodSpec{
			{Name: "web", Namespace: "ns1", Labels: map[string]string{"app": "web"}, Image: "nginx:alpine", Port: 80},
			{Name: "client", Namespace: "ns1", Image: DefaultImage},
		},
		Probes: []ProbeSpec{
			{
				From:           PodRef{Namespace: "ns1", Name: "client"},
				To:             &PodRef{Namespace: "ns1", Name: "web"},
				Protocol:       ProtocolHTTP,
				Port:           80,
				Expect:         ExpectAllow,
				TimeoutSeconds: 2,
			},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	sc := validScenario()
	assert.NoError(t, sc.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{
			name:    "empty id",
			mutate:  func(s *Scenario) { s.ID = "" },
			wantErr: "id must not be empty",
		},
		{
			name:    "uppercase id",
			mutate:  func(s *Scenario) { s.ID = "Baseline" },
			wantErr: "DNS label",
		},
		{
			name:    "duplicate namespace",
			mutate:  func(s *Scenario) { s.Namespaces = append(s.Namespaces, NamespaceSpec{Name: "ns1"}) },
			wantErr: "duplicate namespace",
		},
		{
			name:    "pod in undeclared namespace",
			mutate:  func(s *Scenario) { s.Pods[0].Namespace = "nope" },
			wantErr: "undeclared namespace",
		},
		{
			name:    "duplicate pod",
			mutate:  func(s *Scenario) { s.Pods = append(s.Pods, s.Pods[0]) },
			wantErr: "duplicate pod",
		},
		{
			name:    "policy in undeclared namespace",
			mutate:  func(s *Scenario) { s.Policies = []PolicySpec{{Name: "p", Namespace: "nope"}} },
			wantErr: "undeclared namespace",
		},
		{
			name:    "probe from undeclared pod",
			mutate:  func(s *Scenario) { s.Probes[0].From.Name = "ghost" },
			wantErr: "not declared",
		},
		{
			name:    "probe to undeclared pod",
			mutate:  func(s *Scenario) { s.Probes[0].To = &PodRef{Namespace: "ns1", Name: "ghost"} },
			wantErr: "not declared",
		},
		{
			name: "probe without destination",
			mutate: func(s *Scenario) {
				s.Probes[0].To = nil
				s.Probes[0].ToAddress = ""
			},
			wantErr: "needs a destination",
		},
		{
			name:    "probe with two destinations",
			mutate:  func(s *Scenario) { s.Probes[0].ToAddress = "1.2.3.4" },
			wantErr: "both destination pod and address",
		},
		{
			name:    "unknown protocol",
			mutate:  func(s *Scenario) { s.Probes[0].Protocol = "icmp" },
			wantErr: "unknown protocol",
		},
		{
			name:    "unknown expectation",
			mutate:  func(s *Scenario) { s.Probes[0].Expect = "maybe" },
			wantErr: "unknown expectation",
		},
		{
			name:    "invalid port",
			mutate:  func(s *Scenario) { s.Probes[0].Port = 0 },
			wantErr: "invalid port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := validScenario()
			tt.mutate(&sc)
			err := sc.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	sc := validScenario()
	sc.Pods[1].Image = ""
	sc.Probes[0].TimeoutSeconds = 0

	sc.ApplyDefaults()
	assert.Equal(t, DefaultImage, sc.Pods[1].Image)
	assert.Equal(t, DefaultProbeTimeoutSeconds, sc.Probes[0].TimeoutSeconds)
	// Explicit values are left alone.
	assert.Equal(t, "nginx:alpine", sc.Pods[0].Image)
}

func TestProbeDestination(t *testing.T) {
	p := ProbeSpec{To: &PodRef{Namespace: "ns1", Name: "web"}}
	assert.Equal(t, "ns1/web", p.Destination())

	p = ProbeSpec{ToAddress: "10.1.2.3"}
	assert.Equal(t, "10.1.2.3", p.Destination())
}
