package loader

import "time"

// DefaultPollInterval is used when a policy has a transient predicate but no interval.
const DefaultPollInterval = 5 * time.Second

// PollPolicy re-fetches a collection periodically while any of its items is
// in a state the server may change without notifying. A zero policy never polls.
type PollPolicy[R any] struct {
	Interval  time.Duration
	Transient func(R) bool
}

// Enabled reports whether the policy can ever poll.
func (p PollPolicy[R]) Enabled() bool {
	return p.Transient != nil
}

// Every returns the polling interval.
func (p PollPolicy[R]) Every() time.Duration {
	if p.Interval <= 0 {
		return DefaultPollInterval
	}
	return p.Interval
}

// Active reports whether polling should run for items.
func (p PollPolicy[R]) Active(items []R) bool {
	if !p.Enabled() {
		return false
	}
	for _, it := range items {
		if p.Transient(it) {
			return true
		}
	}
	return false
}
