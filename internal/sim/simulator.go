// Package sim drives the fake generation pipeline: staged progress on a
// per-job cancellable timer, probabilistic failure injection, and a
// synthesized result on success. The same engine runs server-side per
// connection and client-side as the offline fallback.
package sim

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"songforge/internal/synth"
	"songforge/pkg/domain"
)

const (
	// DefaultFailureRate is the per-job chance of an injected failure.
	DefaultFailureRate = 0.10

	// DefaultBaseInterval and DefaultJitter shape the tick period. The
	// period is drawn once per job, not per tick.
	DefaultBaseInterval = 1200 * time.Millisecond
	DefaultJitter       = 400 * time.Millisecond

	// Injected failures land on a mid-pipeline step, never the first or
	// last one.
	failStepMin = 2
	failStepMax = 5

	invalidPromptMessage = "Invalid prompt provided."
	failedMessage        = "Generation failed. Please retry."
)

// rejectedPrompts short-circuit a job before any timer is started.
// Compared after trimming and lowercasing, so whitespace-only prompts
// collapse into the empty entry.
var rejectedPrompts = map[string]struct{}{
	"":        {},
	"invalid": {},
	"error":   {},
}

// Step is one checkpoint of the fixed progress schedule.
type Step struct {
	Progress int
	Message  string
}

// DefaultSteps is the seven-point schedule the demo pipeline walks through.
var DefaultSteps = []Step{
	{Progress: 0, Message: "Initializing..."},
	{Progress: 15, Message: "Analyzing prompt..."},
	{Progress: 30, Message: "Generating melody"},
	{Progress: 50, Message: "Creating harmony"},
	{Progress: 70, Message: "Synthesizing"},
	{Progress: 85, Message: "Mixing audio"},
	{Progress: 100, Message: "Finalizing..."},
}

// Emitter delivers events to the connection owning the job. Events are
// never broadcast.
type Emitter interface {
	Emit(ev domain.Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ev domain.Event)

func (f EmitterFunc) Emit(ev domain.Event) { f(ev) }

// Config tunes one simulator instance. Zero values fall back to the
// documented defaults; FailureRate is only defaulted when negative so
// tests can force always-succeed with an explicit 0.
type Config struct {
	FailureRate  float64
	BaseInterval time.Duration
	Jitter       time.Duration
	Steps        []Step
	Rand         *rand.Rand
}

func (c Config) withDefaults() Config {
	if c.FailureRate < 0 {
		c.FailureRate = DefaultFailureRate
	}
	if c.BaseInterval <= 0 {
		c.BaseInterval = DefaultBaseInterval
	}
	if c.Jitter < 0 {
		c.Jitter = DefaultJitter
	}
	if len(c.Steps) == 0 {
		c.Steps = DefaultSteps
	}
	return c
}

// DefaultConfig returns the deployed tuning.
func DefaultConfig() Config {
	return Config{
		FailureRate:  DefaultFailureRate,
		BaseInterval: DefaultBaseInterval,
		Jitter:       DefaultJitter,
		Steps:        DefaultSteps,
	}
}

// Simulator starts timed generation runs and reports them to one emitter.
// It holds no job state itself; each Start returns the run's handle.
type Simulator struct {
	cfg  Config
	emit Emitter

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a simulator bound to an emitter.
func New(cfg Config, emitter Emitter) *Simulator {
	return &Simulator{cfg: cfg.withDefaults(), emit: emitter, rng: cfg.Rand}
}

// PromptRejected reports whether a prompt falls on the reject list.
func PromptRejected(prompt string) bool {
	_, bad := rejectedPrompts[strings.ToLower(strings.TrimSpace(prompt))]
	return bad
}

// Start validates the prompt and begins the timed run for one job.
// A rejected prompt emits the terminal failure synchronously and returns
// nil: nothing was scheduled, so there is nothing to cancel.
func (s *Simulator) Start(jobID, prompt string) *Run {
	return s.start(jobID, prompt, 0)
}

// StartAfter behaves like Start but delays the first progress emission,
// used to desynchronize paired siblings. Prompt rejection is still
// immediate and unscheduled.
func (s *Simulator) StartAfter(jobID, prompt string, delay time.Duration) *Run {
	return s.start(jobID, prompt, delay)
}

func (s *Simulator) start(jobID, prompt string, delay time.Duration) *Run {
	if PromptRejected(prompt) {
		s.emit.Emit(&domain.Failed{GenerationID: jobID, Error: invalidPromptMessage})
		return nil
	}

	willFail := s.float64() < s.cfg.FailureRate
	r := &Run{
		sim:      s,
		jobID:    jobID,
		interval: s.interval(),
		willFail: willFail,
		step:     -1,
	}
	if willFail {
		r.failStep = failStepMin + s.intN(failStepMax-failStepMin+1)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if delay > 0 {
		r.timer = time.AfterFunc(delay, r.tick)
		return r
	}
	r.step = 0
	first := s.cfg.Steps[0]
	s.emit.Emit(&domain.Progress{GenerationID: jobID, Progress: first.Progress, Message: first.Message})
	r.timer = time.AfterFunc(r.interval, r.tick)
	return r
}

// interval draws the per-job tick period: base plus symmetric jitter.
func (s *Simulator) interval() time.Duration {
	if s.cfg.Jitter == 0 {
		return s.cfg.BaseInterval
	}
	jitter := time.Duration(s.int64N(int64(2*s.cfg.Jitter))) - s.cfg.Jitter
	period := s.cfg.BaseInterval + jitter
	if period < time.Millisecond {
		period = time.Millisecond
	}
	return period
}

func (s *Simulator) float64() float64 {
	if s.rng == nil {
		return rand.Float64()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Simulator) intN(n int) int {
	if s.rng == nil {
		return rand.IntN(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func (s *Simulator) int64N(n int64) int64 {
	if s.rng == nil {
		return rand.Int64N(n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int64N(n)
}

// Run is the live handle of one scheduled job. Exactly one terminal event
// is emitted per run; Cancel suppresses everything after it, even ticks
// that were already queued.
type Run struct {
	sim      *Simulator
	jobID    string
	interval time.Duration
	willFail bool
	failStep int

	mu      sync.Mutex
	timer   *time.Timer
	step    int
	stopped bool
}

// JobID names the job this run belongs to.
func (r *Run) JobID() string { return r.jobID }

// Cancel stops the run. Safe to call repeatedly and after completion.
func (r *Run) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *Run) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.step++

	if r.willFail && r.step == r.failStep {
		r.stopped = true
		r.sim.emit.Emit(&domain.Failed{GenerationID: r.jobID, Error: failedMessage})
		return
	}

	steps := r.sim.cfg.Steps
	if r.step >= len(steps) {
		r.stopped = true
		r.sim.emit.Emit(&domain.Complete{
			GenerationID: r.jobID,
			Duration:     synth.Duration(),
			WaveformData: synth.Waveform(),
		})
		return
	}

	s := steps[r.step]
	r.sim.emit.Emit(&domain.Progress{GenerationID: r.jobID, Progress: s.Progress, Message: s.Message})
	r.timer = time.AfterFunc(r.interval, r.tick)
}
