package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/wait"
)

// NotReadyError reports the pods still not ready when the wait timed out,
// so failures can name the exact stragglers.
type NotReadyError struct {
	Refs    []PodRef
	Timeout time.Duration
}

func (e *NotReadyError) Error() string {
	names := make([]string, len(e.Refs))
	for i, ref := range e.Refs {
		names[i] = ref.String()
	}
	sort.Strings(names)
	return fmt.Sprintf("pods not ready within %v: %s", e.Timeout, strings.Join(names, ", "))
}

// Waiter polls pod status until all pods report Ready. Polling, not watch:
// the gateway contract does not assume event streams.
type Waiter struct {
	gateway Gateway

	// Interval between polls. Zero means the 2s default.
	Interval time.Duration
}

// NewWaiter returns a Waiter with the default poll interval.
func NewWaiter(gateway Gateway) *Waiter {
	return &Waiter{gateway: gateway, Interval: 2 * time.Second}
}

// WaitReady blocks until every ref reports Ready or the timeout elapses.
// Status read errors are treated as not-ready and polled again; a pod that
// never existed surfaces in the NotReadyError rather than failing fast,
// which keeps the diagnostic uniform.
func (w *Waiter) WaitReady(ctx context.Context, refs []PodRef, timeout time.Duration) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	notReady := refs
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		var remaining []PodRef
		for _, ref := range notReady {
			status, err := w.gateway.GetPodStatus(ctx, ref.Namespace, ref.Name)
			if err != nil || !status.Ready {
				remaining = append(remaining, ref)
			}
		}
		notReady = remaining
		return len(notReady) == 0, nil
	})
	if err != nil {
		// A cancelled parent context is not a readiness timeout; report it
		// as what it is so batch-level cancellation reads correctly.
		if errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "cancelled while waiting for pod readiness")
		}
		return &NotReadyError{Refs: notReady, Timeout: timeout}
	}
	return nil
}
