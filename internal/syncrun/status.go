package syncrun

import (
	"sync"
	"time"

	"github.com/hyperengineering/exposure/internal/types"
)

// State is one stage of the synchronization state machine.
type State string

const (
	StateIdle          State = "idle"
	StateIndexFetched  State = "index_fetched"
	StateDownloading   State = "downloading"
	StateReadyToSubmit State = "ready_to_submit"
	StateSubmitted     State = "submitted"
	StateClosed        State = "closed"
	StateFailed        State = "failed"
)

// CategoryStatus is the externally visible progress of one category's runs.
type CategoryStatus struct {
	State      State                 `json:"state"`
	Token      string                `json:"token,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
	LastError  string                `json:"last_error,omitempty"`
	LastResult *types.ExposureResult `json:"last_result,omitempty"`
}

// Registry tracks run state per category for the status API. It replaces a
// process-wide observable singleton: the orchestrator receives it
// explicitly at construction and is its only writer.
type Registry struct {
	mu sync.RWMutex
	m  map[types.Category]*CategoryStatus
}

// NewRegistry creates an empty status registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[types.Category]*CategoryStatus)}
}

func (r *Registry) entry(cat types.Category) *CategoryStatus {
	if s, ok := r.m[cat]; ok {
		return s
	}
	s := &CategoryStatus{State: StateIdle}
	r.m[cat] = s
	return s
}

// SetState records a state transition for a category.
func (r *Registry) SetState(cat types.Category, state State, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.entry(cat)
	s.State = state
	s.Token = token
	s.UpdatedAt = time.Now().UTC()
}

// SetError records a failed run; the previous result is retained.
func (r *Registry) SetError(cat types.Category, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.entry(cat)
	s.State = StateFailed
	s.LastError = err.Error()
	s.UpdatedAt = time.Now().UTC()
}

// SetResult records a completed run and clears any previous error.
func (r *Registry) SetResult(cat types.Category, res *types.ExposureResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.entry(cat)
	s.State = StateClosed
	s.Token = ""
	s.LastError = ""
	s.LastResult = res
	s.UpdatedAt = time.Now().UTC()
}

// Snapshot returns a copy of all category statuses.
func (r *Registry) Snapshot() map[types.Category]CategoryStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[types.Category]CategoryStatus, len(r.m))
	for cat, s := range r.m {
		out[cat] = *s
	}
	return out
}

// Result returns the last normalized result for a category, if any.
func (r *Registry) Result(cat types.Category) (*types.ExposureResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[cat]
	if !ok || s.LastResult == nil {
		return nil, false
	}
	return s.LastResult, true
}
