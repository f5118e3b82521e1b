package githubapi

import (
	"net/http"
	"sync"
	"time"
)

// ActivityMode represents the readiness of GitHub's computed repository statistics.
type ActivityMode string

const (
	// ActivityModeUnknown is the initial mode before first observation.
	ActivityModeUnknown ActivityMode = "unknown"
	// ActivityModeWarming indicates GitHub is still computing the statistics.
	ActivityModeWarming ActivityMode = "warming"
	// ActivityModeReady indicates statistics are available.
	ActivityModeReady ActivityMode = "ready"
	// ActivityModeStale indicates statistics have stayed unavailable past the stale window.
	ActivityModeStale ActivityMode = "stale"
)

// ActivityState tracks statistics readiness transitions for one repository.
type ActivityState struct {
	Mode           ActivityMode `json:"mode"`
	Consecutive202 int          `json:"consecutive_202"`
	WarmingSince   time.Time    `json:"warming_since,omitzero"`
	LastReadyAt    time.Time    `json:"last_ready_at,omitzero"`
	LastObservedAt time.Time    `json:"last_observed_at,omitzero"`
}

// ActivityEvent is one statistics endpoint observation.
type ActivityEvent struct {
	ObservedAt time.Time
	HTTPStatus int
}

// ActivityStateMachine configures transition rules.
type ActivityStateMachine struct {
	// StaleAfter is how long a repository may stay warming before it is stale.
	StaleAfter time.Duration
}

// Apply applies an event to a previous state and returns a new state.
func (m ActivityStateMachine) Apply(previous ActivityState, event ActivityEvent) ActivityState {
	next := previous
	if next.Mode == "" {
		next.Mode = ActivityModeUnknown
	}
	next.LastObservedAt = event.ObservedAt

	switch event.HTTPStatus {
	case http.StatusAccepted:
		next.Consecutive202++
		if next.Mode != ActivityModeWarming && next.Mode != ActivityModeStale {
			next.Mode = ActivityModeWarming
			next.WarmingSince = event.ObservedAt
			return next
		}
		if m.StaleAfter > 0 && !next.WarmingSince.IsZero() && event.ObservedAt.Sub(next.WarmingSince) > m.StaleAfter {
			next.Mode = ActivityModeStale
		}
		return next
	case http.StatusOK, http.StatusNoContent:
		next.Mode = ActivityModeReady
		next.Consecutive202 = 0
		next.WarmingSince = time.Time{}
		next.LastReadyAt = event.ObservedAt
		return next
	}
	return next
}

// ActivityTracker keeps the statistics state per repository.
type ActivityTracker struct {
	mu      sync.Mutex
	machine ActivityStateMachine
	states  map[string]ActivityState
}

// NewActivityTracker creates an empty tracker.
func NewActivityTracker(machine ActivityStateMachine) *ActivityTracker {
	return &ActivityTracker{
		machine: machine,
		states:  make(map[string]ActivityState),
	}
}

// Observe records an observation for key and returns the resulting state.
func (t *ActivityTracker) Observe(key string, status int, observedAt time.Time) ActivityState {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.machine.Apply(t.states[key], ActivityEvent{ObservedAt: observedAt, HTTPStatus: status})
	t.states[key] = next
	return next
}

// State returns the current state for key.
func (t *ActivityTracker) State(key string) ActivityState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[key]
	if !ok {
		return ActivityState{Mode: ActivityModeUnknown}
	}
	return state
}

// StatusCode maps an endpoint status back to the HTTP status that produced it.
func (s EndpointStatus) StatusCode() int {
	switch s {
	case EndpointStatusOK:
		return http.StatusOK
	case EndpointStatusAccepted:
		return http.StatusAccepted
	case EndpointStatusNoContent:
		return http.StatusNoContent
	case EndpointStatusNotFound:
		return http.StatusNotFound
	}
	return 0
}
