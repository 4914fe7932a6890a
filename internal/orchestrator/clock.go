package orchestrator

import (
	"context"
	"time"
)

// DefaultPropagationDelay is how long CNI plugins are given to enforce a
// freshly applied policy before the first probe runs.
const DefaultPropagationDelay = 5 * time.Second

// Clock models the lag between policy acceptance by the API server and
// actual enforcement by the CNI plugin. It is the single wait between policy
// application and probing; if a platform ever exposes an enforcement signal,
// this is the one place to poll it instead.
type Clock struct {
	Delay time.Duration
}

// NewClock returns a Clock with the given delay, or the default when
// non-positive.
func NewClock(delay time.Duration) Clock {
	if delay <= 0 {
		delay = DefaultPropagationDelay
	}
	return Clock{Delay: delay}
}

// AwaitEnforcement blocks for the propagation delay or until the context is
// cancelled.
func (c Clock) AwaitEnforcement(ctx context.Context) error {
	timer := time.NewTimer(c.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
