package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"netpol-verify/internal/cluster"
	"netpol-verify/internal/scenario"
)

// State is a stop in the scenario lifecycle. Completed and Aborted are
// terminal; teardown runs on entry to either.
type State string

const (
	StatePending       State = "Pending"
	StateBuilding      State = "Building"
	StateWaitingReady  State = "WaitingReady"
	StatePolicyApplied State = "PolicyApplied"
	StateProbing       State = "Probing"
	StateCompleted     State = "Completed"
	StateAborted       State = "Aborted"
)

// Verdict is the scenario-level outcome.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
	// VerdictSkip marks precondition failures unrelated to the policy under
	// test, e.g. the environment refusing to create the first namespace.
	VerdictSkip Verdict = "skip"
)

// ScenarioResult is the full record of one scenario execution.
type ScenarioResult struct {
	ScenarioID     string
	Verdict        Verdict
	ProbeResults   []ProbeResult
	FailureReasons []string
	StartedAt      time.Time
	EndedAt        time.Time
	States         []State
}

// Options tune a Runner. Zero values fall back to defaults.
type Options struct {
	NamespacePrefix  string
	ReadyTimeout     time.Duration
	PropagationDelay time.Duration
	ProbeTimeout     time.Duration
}

// Runner drives one scenario end to end: build topology, wait for readiness,
// apply policies, wait out propagation, probe in declared order, assemble
// the verdict. Teardown is guaranteed on every exit path, including panics
// and cancellation.
type Runner struct {
	gateway      Gateway
	builder      *Builder
	waiter       *Waiter
	clock        Clock
	prober       *Prober
	readyTimeout time.Duration
	log          *logrus.Entry
}

// NewRunner wires a Runner around the gateway.
func NewRunner(gateway Gateway, opts Options) *Runner {
	readyTimeout := opts.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = 120 * time.Second
	}
	prober := NewProber(gateway)
	if opts.ProbeTimeout > 0 {
		prober.DefaultTimeoutSeconds = int(opts.ProbeTimeout / time.Second)
	}
	return &Runner{
		gateway:      gateway,
		builder:      NewBuilder(gateway, opts.NamespacePrefix),
		waiter:       NewWaiter(gateway),
		clock:        NewClock(opts.PropagationDelay),
		prober:       prober,
		readyTimeout: readyTimeout,
		log:          logrus.WithField("component", "runner"),
	}
}

// Run executes the scenario. It never returns an error: every failure mode
// is a verdict with reasons, so a batch always makes forward progress.
func (r *Runner) Run(ctx context.Context, sc scenario.Scenario) (result ScenarioResult) {
	result = ScenarioResult{
		ScenarioID: sc.ID,
		StartedAt:  time.Now(),
		States:     []State{StatePending},
	}
	log := r.log.WithField("scenario", sc.ID)

	transition := func(s State) {
		result.States = append(result.States, s)
		log.Debugf("state %s", s)
	}
	fail := func(reason string) {
		transition(StateAborted)
		result.Verdict = VerdictFail
		result.FailureReasons = append(result.FailureReasons, reason)
	}

	var topo *Topology
	defer func() {
		if p := recover(); p != nil {
			fail(fmt.Sprintf("panic: %v", p))
		}
		if topo != nil {
			r.teardown(topo, log)
		}
		result.EndedAt = time.Now()
	}()

	transition(StateBuilding)
	var buildErr error
	topo, buildErr = r.builder.Build(ctx, sc)
	if buildErr != nil {
		// Skip only when nothing was created at all: the environment refused
		// the very first namespace. A forbidden pod create after namespaces
		// landed is a failure of this scenario, not a precondition.
		if topo != nil && topo.CreatedNamespaces == 0 && cluster.IsKind(buildErr, cluster.KindPermissionDenied) {
			transition(StateAborted)
			result.Verdict = VerdictSkip
			result.FailureReasons = append(result.FailureReasons, buildErr.Error())
			return result
		}
		fail(buildErr.Error())
		return result
	}

	transition(StateWaitingReady)
	if err := r.waiter.WaitReady(ctx, topo.AllPods(), r.readyTimeout); err != nil {
		if notReady, ok := err.(*NotReadyError); ok {
			fail(fmt.Sprintf("readiness timeout: %s", refNames(notReady.Refs)))
			r.logEvents(ctx, topo, log)
		} else {
			fail(err.Error())
		}
		return result
	}

	if err := r.builder.ApplyPolicies(ctx, topo, sc.Policies); err != nil {
		fail(err.Error())
		return result
	}
	transition(StatePolicyApplied)

	if err := r.clock.AwaitEnforcement(ctx); err != nil {
		fail(fmt.Sprintf("cancelled while waiting for enforcement: %v", err))
		return result
	}

	transition(StateProbing)
	// All probes run even after a divergence; the full picture is the
	// diagnostic.
	for _, spec := range sc.Probes {
		probeResult := r.prober.Probe(ctx, topo, spec)
		result.ProbeResults = append(result.ProbeResults, probeResult)
	}

	transition(StateCompleted)
	result.Verdict = VerdictPass
	for _, pr := range result.ProbeResults {
		if pr.Observed == OutcomeError {
			result.Verdict = VerdictFail
			result.FailureReasons = append(result.FailureReasons,
				fmt.Sprintf("probe %s could not run: %s", probeLabel(pr.Probe), pr.Detail))
			continue
		}
		if !pr.Matched() {
			result.Verdict = VerdictFail
			result.FailureReasons = append(result.FailureReasons,
				fmt.Sprintf("probe %s expected %s, observed %s (exit %d)",
					probeLabel(pr.Probe), pr.Probe.Expect, pr.Observed, pr.ExitCode))
		}
	}
	return result
}

// teardown requests deletion of every namespace the topology names,
// best-effort and non-waiting so a stuck cluster never blocks the run.
// Failures are logged, never escalated: a cleanup problem must not corrupt
// an already-computed verdict. A fresh context is used so teardown still
// happens after cancellation.
func (r *Runner) teardown(topo *Topology, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, name := range topo.AllNamespaces() {
		if err := r.gateway.DeleteNamespace(ctx, name, false, 0); err != nil {
			log.Warnf("teardown: failed to delete namespace %s: %v", name, err)
		} else {
			log.Debugf("teardown: requested deletion of namespace %s", name)
		}
	}
}

// logEvents dumps namespace events after a readiness failure; image pull and
// scheduling problems show up here rather than in pod status.
func (r *Runner) logEvents(ctx context.Context, topo *Topology, log *logrus.Entry) {
	for _, name := range topo.AllNamespaces() {
		events, err := r.gateway.ListEvents(ctx, name)
		if err != nil {
			log.Debugf("unable to list events in %s: %v", name, err)
			continue
		}
		for _, ev := range events {
			log.Warnf("event %s/%s: %s: %s", name, ev.InvolvedObject.Name, ev.Reason, ev.Message)
		}
	}
}

func refNames(refs []PodRef) string {
	names := ""
	for i, ref := range refs {
		if i > 0 {
			names += ", "
		}
		names += ref.String()
	}
	return names
}
