// Package ratelimit provides per-source sliding-window admission control.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Rule defines the admission budget for one external source.
type Rule struct {
	LimitPerWindow int
	Window         time.Duration
}

// LimitExceededError is returned when a source's window is full. RetryAfter is
// the wait until the oldest admission falls out of the window.
type LimitExceededError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for source %q, retry after %s", e.Source, e.RetryAfter.Round(time.Millisecond))
}

// windowState is the sliding window of recent admission timestamps for one
// source. Mutated only under the limiter's lock.
type windowState struct {
	rule       Rule
	admissions []time.Time
}

// Limiter gates tool executions per external platform. It is the only state
// mutated by multiple worker slots concurrently; every read and write goes
// through Check under an exclusive lock so no admission is lost.
type Limiter struct {
	mu          sync.Mutex
	sources     map[string]*windowState
	defaultRule Rule
	now         func() time.Time
}

// NewLimiter creates a limiter with per-source rules. Sources without an
// explicit rule fall back to defaultRule.
func NewLimiter(defaultRule Rule, rules map[string]Rule) *Limiter {
	l := &Limiter{
		sources:     make(map[string]*windowState),
		defaultRule: defaultRule,
		now:         time.Now,
	}
	for source, rule := range rules {
		l.sources[source] = &windowState{rule: rule}
	}
	return l
}

// Check performs one admission check for source. On success the admission is
// recorded and nil is returned. At capacity it returns *LimitExceededError
// and records nothing. This is a hard gate: a caller that receives the error
// must not execute the tool.
func (l *Limiter) Check(source string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.sources[source]
	if !ok {
		state = &windowState{rule: l.defaultRule}
		l.sources[source] = state
	}

	now := l.now()
	cutoff := now.Add(-state.rule.Window)

	// Discard admissions that have slid out of the window
	kept := state.admissions[:0]
	for _, ts := range state.admissions {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	state.admissions = kept

	if state.rule.LimitPerWindow > 0 && len(state.admissions) >= state.rule.LimitPerWindow {
		oldest := state.admissions[0]
		return &LimitExceededError{
			Source:     source,
			RetryAfter: oldest.Add(state.rule.Window).Sub(now),
		}
	}

	state.admissions = append(state.admissions, now)
	return nil
}
