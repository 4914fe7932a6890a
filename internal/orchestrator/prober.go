package orchestrator

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"netpol-verify/internal/scenario"
)

// Outcome is what a probe observed.
//
// A probe that times out is classified as OutcomeDeny: at this protocol
// level an absent response is indistinguishable from enforcement. Test
// authors relying on expected=deny should be aware the classification does
// not prove a policy dropped the packet. The exit code and duration are kept
// on the result so a refused connection can still be told apart from a
// full-timeout deny after the fact.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
	// OutcomeError means the check itself could not run (exec transport
	// failure, source pod gone, unresolvable destination). Always a scenario
	// failure, regardless of the expectation.
	OutcomeError Outcome = "error"
)

// ProbeResult is immutable evidence for one connectivity check.
type ProbeResult struct {
	Probe    scenario.ProbeSpec
	Observed Outcome
	ExitCode int
	Duration time.Duration
	Detail   string
}

// Matched reports whether the observation satisfies the expectation. An
// error observation never matches.
func (r ProbeResult) Matched() bool {
	return string(r.Observed) == string(r.Probe.Expect)
}

// Prober issues connectivity checks from source pods through the gateway's
// exec capability.
type Prober struct {
	gateway Gateway

	// DefaultTimeoutSeconds applies to probes that do not carry their own
	// timeout.
	DefaultTimeoutSeconds int

	log *logrus.Entry
}

// NewProber returns a Prober using the given gateway.
func NewProber(gateway Gateway) *Prober {
	return &Prober{
		gateway:               gateway,
		DefaultTimeoutSeconds: scenario.DefaultProbeTimeoutSeconds,
		log:                   logrus.WithField("component", "prober"),
	}
}

// Probe runs one check and classifies the result: exit 0 is allow, any
// non-zero exit (refusal or timeout) is deny, and a gateway-level failure is
// error. Probe outcomes are data, never Go errors.
func (p *Prober) Probe(ctx context.Context, topo *Topology, spec scenario.ProbeSpec) ProbeResult {
	if spec.TimeoutSeconds <= 0 {
		spec.TimeoutSeconds = p.DefaultTimeoutSeconds
	}
	result := ProbeResult{Probe: spec}
	started := time.Now()

	source, ok := topo.Pods[spec.From]
	if !ok {
		result.Observed = OutcomeError
		result.Detail = fmt.Sprintf("source pod %s not in topology", spec.From)
		return result
	}

	address, detail := p.resolveDestination(ctx, topo, spec)
	if address == "" {
		result.Observed = OutcomeError
		result.Detail = detail
		result.Duration = time.Since(started)
		return result
	}

	command := probeCommand(spec, address)
	// Grace on top of the probe's own timeout so the command, not the exec
	// transport, is what gives up first.
	execTimeout := time.Duration(spec.TimeoutSeconds+3) * time.Second

	execResult, err := p.gateway.ExecInPod(ctx, source.Namespace, source.Name, source.Container, command, execTimeout)
	result.Duration = time.Since(started)

	if err != nil {
		result.Observed = OutcomeError
		result.Detail = err.Error()
		p.log.WithField("probe", probeLabel(spec)).Warnf("exec failed: %v", err)
		return result
	}

	result.ExitCode = execResult.ExitCode
	if execResult.ExitCode == 0 {
		result.Observed = OutcomeAllow
	} else {
		result.Observed = OutcomeDeny
		result.Detail = execResult.Stderr
	}
	p.log.WithField("probe", probeLabel(spec)).Debugf("observed %s (exit %d, %v)", result.Observed, result.ExitCode, result.Duration)
	return result
}

// resolveDestination returns the address to probe: a pod's runtime IP, or
// the external address verbatim.
func (p *Prober) resolveDestination(ctx context.Context, topo *Topology, spec scenario.ProbeSpec) (string, string) {
	if spec.To == nil {
		return spec.ToAddress, ""
	}
	dest, ok := topo.Pods[*spec.To]
	if !ok {
		return "", fmt.Sprintf("destination pod %s not in topology", spec.To)
	}
	status, err := p.gateway.GetPodStatus(ctx, dest.Namespace, dest.Name)
	if err != nil {
		return "", fmt.Sprintf("unable to read destination pod %s: %v", dest, err)
	}
	if status.IP == "" {
		return "", fmt.Sprintf("destination pod %s has no IP", dest)
	}
	return status.IP, ""
}

func probeCommand(spec scenario.ProbeSpec, address string) []string {
	timeout := strconv.Itoa(spec.TimeoutSeconds)
	port := strconv.Itoa(spec.Port)
	switch spec.Protocol {
	case scenario.ProtocolHTTP:
		url := "http://" + net.JoinHostPort(address, port)
		return []string{
			"curl", "-s", "-o", "/dev/null", "-w", "%{http_code}",
			"--connect-timeout", timeout, "--max-time", timeout, url,
		}
	default: // tcp
		return []string{"nc", "-z", "-w", timeout, address, port}
	}
}

func probeLabel(spec scenario.ProbeSpec) string {
	return fmt.Sprintf("%s->%s:%d/%s", spec.From, spec.Destination(), spec.Port, spec.Protocol)
}
