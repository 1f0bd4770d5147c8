// Package registry tracks the live timer handles of one connection's
// generation jobs, so retries can supersede in-flight runs and a
// disconnect can reap everything the connection owns.
package registry

import "sync"

// Canceler is the live handle tracked per job.
type Canceler interface {
	Cancel()
}

// Registry maps job id to its run handle. One registry exists per
// connection; distinct connections never share entries.
type Registry struct {
	mu   sync.Mutex
	runs map[string]Canceler
}

func New() *Registry {
	return &Registry{runs: make(map[string]Canceler)}
}

// Put records a run handle. An existing handle under the same id is
// canceled first so a superseded run can never tick again.
func (r *Registry) Put(jobID string, run Canceler) {
	r.mu.Lock()
	prev := r.runs[jobID]
	r.runs[jobID] = run
	r.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
}

// Cancel stops and forgets a job. Returns false when the id was unknown,
// which makes retry idempotent: retrying a job with no live timer simply
// starts one.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	run, ok := r.runs[jobID]
	delete(r.runs, jobID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	run.Cancel()
	return true
}

// Remove forgets a job without canceling, used when a run reached its
// terminal state and discarded its own timer.
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	delete(r.runs, jobID)
	r.mu.Unlock()
}

// CancelAll reaps every live run. Called on disconnect; required for
// correctness so short-lived connections cannot accumulate timers.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	runs := r.runs
	r.runs = make(map[string]Canceler)
	r.mu.Unlock()
	for _, run := range runs {
		run.Cancel()
	}
}

// Len reports the number of live runs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}
