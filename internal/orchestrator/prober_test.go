package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netpol-verify/internal/cluster"
	"netpol-verify/internal/scenario"
)

func builtTopology(t *testing.T, gw *fakeGateway) *Topology {
	t.Helper()
	topo, err := NewBuilder(gw, "netpol").Build(context.Background(), twoNamespaceScenario())
	require.NoError(t, err)
	return topo
}

func httpProbe(expect scenario.Expectation) scenario.ProbeSpec {
	return scenario.ProbeSpec{
		From:           scenario.PodRef{Namespace: "ns2", Name: "client"},
		To:             &scenario.PodRef{Namespace: "ns1", Name: "web"},
		Protocol:       scenario.ProtocolHTTP,
		Port:           80,
		Expect:         expect,
		TimeoutSeconds: 2,
	}
}

func TestProbeObservesAllow(t *testing.T) {
	gw := newFakeGateway()
	topo := builtTopology(t, gw)

	result := NewProber(gw).Probe(context.Background(), topo, httpProbe(scenario.ExpectAllow))
	assert.Equal(t, OutcomeAllow, result.Observed)
	assert.Equal(t, 0, result.ExitCode)
	assert.True(t, result.Matched())
}

func TestProbeClassifiesNonZeroExitAsDeny(t *testing.T) {
	gw := newFakeGateway()
	topo := builtTopology(t, gw)
	// Nothing responds: the exec'd check exits non-zero after its timeout.
	// That must classify as deny, never as error.
	gw.allowFn = func(fromPod, address string, port int) bool { return false }

	result := NewProber(gw).Probe(context.Background(), topo, httpProbe(scenario.ExpectDeny))
	assert.Equal(t, OutcomeDeny, result.Observed)
	assert.Equal(t, 1, result.ExitCode)
	assert.True(t, result.Matched())
}

func TestProbeClassifiesExecFailureAsError(t *testing.T) {
	gw := newFakeGateway()
	topo := builtTopology(t, gw)
	gw.execErr = &cluster.Error{Kind: cluster.KindNotFound, Op: "exec", Err: fmt.Errorf("pod gone")}

	result := NewProber(gw).Probe(context.Background(), topo, httpProbe(scenario.ExpectDeny))
	assert.Equal(t, OutcomeError, result.Observed)
	// An error observation never satisfies any expectation.
	assert.False(t, result.Matched())
}

func TestProbeErrorsWhenDestinationHasNoIP(t *testing.T) {
	gw := newFakeGateway()
	topo := builtTopology(t, gw)
	gw.noIP["web"] = true

	result := NewProber(gw).Probe(context.Background(), topo, httpProbe(scenario.ExpectAllow))
	assert.Equal(t, OutcomeError, result.Observed)
	assert.Contains(t, result.Detail, "no IP")
}

func TestProbeTargetsResolvedPodIP(t *testing.T) {
	gw := newFakeGateway()
	topo := builtTopology(t, gw)

	NewProber(gw).Probe(context.Background(), topo, httpProbe(scenario.ExpectAllow))

	execIdx := gw.lastOpIndex("exec")
	require.NotEqual(t, -1, execIdx)
	assert.Contains(t, gw.ops[execIdx], "curl")
	assert.Contains(t, gw.ops[execIdx], gw.podIPs["web"])
}

func TestProbeExternalAddressUsedVerbatim(t *testing.T) {
	gw := newFakeGateway()
	topo := builtTopology(t, gw)

	spec := scenario.ProbeSpec{
		From:           scenario.PodRef{Namespace: "ns2", Name: "client"},
		ToAddress:      "93.184.216.34",
		Protocol:       scenario.ProtocolTCP,
		Port:           443,
		Expect:         scenario.ExpectAllow,
		TimeoutSeconds: 2,
	}
	result := NewProber(gw).Probe(context.Background(), topo, spec)
	assert.Equal(t, OutcomeAllow, result.Observed)

	execIdx := gw.lastOpIndex("exec")
	require.NotEqual(t, -1, execIdx)
	assert.Contains(t, gw.ops[execIdx], "nc -z")
	assert.Contains(t, gw.ops[execIdx], "93.184.216.34")
}

func TestProbeFallsBackToDefaultTimeout(t *testing.T) {
	gw := newFakeGateway()
	topo := builtTopology(t, gw)

	spec := httpProbe(scenario.ExpectAllow)
	spec.TimeoutSeconds = 0
	prober := NewProber(gw)
	prober.DefaultTimeoutSeconds = 7

	result := prober.Probe(context.Background(), topo, spec)
	assert.Equal(t, 7, result.Probe.TimeoutSeconds)

	execIdx := gw.lastOpIndex("exec")
	require.NotEqual(t, -1, execIdx)
	assert.Contains(t, gw.ops[execIdx], "--max-time 7")
}

func TestProbeCommands(t *testing.T) {
	http := probeCommand(httpProbe(scenario.ExpectAllow), "10.0.0.1")
	assert.Equal(t, "curl", http[0])
	assert.Contains(t, strings.Join(http, " "), "--max-time 2")
	assert.Equal(t, "http://10.0.0.1:80", http[len(http)-1])

	tcp := probeCommand(scenario.ProbeSpec{Protocol: scenario.ProtocolTCP, Port: 5432, TimeoutSeconds: 3}, "10.0.0.9")
	assert.Equal(t, []string{"nc", "-z", "-w", "3", "10.0.0.9", "5432"}, tcp)
}
