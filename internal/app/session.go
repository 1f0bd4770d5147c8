package app

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"songforge/internal/registry"
	"songforge/internal/sim"
	"songforge/internal/synth"
	"songforge/pkg/domain"
)

// Session owns everything one connection can touch: its job registry,
// its ledger account, and the simulator emitting into its event stream.
// Nothing here is shared across connections.
type Session struct {
	app    *App
	connID string
	out    sim.Emitter
	log    *slog.Logger
	reg    *registry.Registry
	sim    *sim.Simulator

	mu      sync.Mutex
	jobs    map[string]*jobState
	debited map[string]bool
}

type jobState struct {
	prompt    string
	groupID   string
	title     string
	cover     string
	variation int
	createdAt time.Time
	terminal  bool
}

// NewSession builds the session for one connection. Emitted events are
// addressed to that connection only.
func (a *App) NewSession(connID string, out sim.Emitter) *Session {
	s := &Session{
		app:     a,
		connID:  connID,
		out:     out,
		log:     slog.Default().With("conn_id", connID),
		reg:     registry.New(),
		jobs:    make(map[string]*jobState),
		debited: make(map[string]bool),
	}
	s.sim = sim.New(a.simCfg, sim.EmitterFunc(s.handleEvent))
	return s
}

// Init announces the starting credit balance.
func (s *Session) Init() {
	bal, err := s.app.ledger.Initialize(s.connID)
	if err != nil {
		s.log.Error("initialize credits", "err", err)
		return
	}
	s.out.Emit(&domain.CreditsUpdated{Credits: bal})
}

// StartSingle runs one generation for the connection.
func (s *Session) StartSingle(generationID, prompt string) {
	s.out.Emit(&domain.GenerationStarted{GenerationID: generationID})

	s.mu.Lock()
	s.jobs[generationID] = &jobState{
		prompt:    prompt,
		title:     synth.Title(prompt),
		cover:     synth.RandomCover(),
		variation: 1,
		createdAt: time.Now().UTC(),
	}
	s.mu.Unlock()

	if run := s.sim.Start(generationID, prompt); run != nil {
		s.reg.Put(generationID, run)
	}
}

// StartPaired runs two takes of the same prompt, slightly staggered.
// Credits are checked before anything is created; a rejected request
// produces no generation records at all.
func (s *Session) StartPaired(groupID, prompt string) {
	ok, err := s.app.ledger.CanAfford(s.connID, s.app.cost)
	if err != nil {
		s.log.Error("credits check", "err", err)
		ok = false
	}
	if !ok {
		s.out.Emit(&domain.InsufficientCredits{Prompt: prompt})
		return
	}

	title := synth.Title(prompt)
	cover := synth.RandomCover()
	idV1 := fmt.Sprintf("%s_v1", groupID)
	idV2 := fmt.Sprintf("%s_v2", groupID)
	now := time.Now().UTC()

	s.mu.Lock()
	s.jobs[idV1] = &jobState{prompt: prompt, groupID: groupID, title: title, cover: cover, variation: 1, createdAt: now}
	s.jobs[idV2] = &jobState{prompt: prompt, groupID: groupID, title: title, cover: cover, variation: 2, createdAt: now}
	s.mu.Unlock()

	s.out.Emit(&domain.PairedStarted{
		GroupID:       groupID,
		Prompt:        prompt,
		Title:         title,
		CoverImage:    cover,
		GenerationIDs: []string{idV1, idV2},
	})

	if run := s.sim.Start(idV1, prompt); run != nil {
		s.reg.Put(idV1, run)
	}
	if run := s.sim.StartAfter(idV2, prompt, s.app.stagger); run != nil {
		s.reg.Put(idV2, run)
	}
}

// Retry supersedes any in-flight run for the job and starts a fresh one
// from zero progress. The failure roll is independent of the previous
// attempt's. Retrying a job with no live timer simply starts one.
// The superseded run is canceled before the terminal flag is reset;
// Run.Cancel is synchronous with in-flight ticks, so once it returns no
// stale terminal event can re-mark the job and swallow the fresh run.
func (s *Session) Retry(generationID, prompt string) {
	s.reg.Cancel(generationID)

	s.mu.Lock()
	js := s.jobs[generationID]
	if prompt == "" && js != nil {
		prompt = js.prompt
	}
	if js != nil {
		js.prompt = prompt
		js.terminal = false
	} else {
		s.jobs[generationID] = &jobState{
			prompt:    prompt,
			title:     synth.Title(prompt),
			cover:     synth.RandomCover(),
			variation: 1,
			createdAt: time.Now().UTC(),
		}
	}
	s.mu.Unlock()

	s.out.Emit(&domain.Progress{GenerationID: generationID, Progress: 0, Message: "Retrying..."})
	if run := s.sim.Start(generationID, prompt); run != nil {
		s.reg.Put(generationID, run)
	}
}

// ActiveJobs reports the number of live runs, used by the stats surface.
func (s *Session) ActiveJobs() int { return s.reg.Len() }

// Close reaps every live timer and releases the ledger entry. Must be
// called on disconnect; dangling timers on dead connections are a leak.
func (s *Session) Close() {
	s.reg.CancelAll()
	if err := s.app.ledger.Release(s.connID); err != nil {
		s.log.Error("release credits", "err", err)
	}
}

// handleEvent intercepts the simulator's stream for bookkeeping before
// forwarding to the connection: registry cleanup on terminal events, the
// once-per-group credit debit, and catalog persistence of finished
// tracks. Events for jobs already in a terminal state are dropped.
func (s *Session) handleEvent(ev domain.Event) {
	switch e := ev.(type) {
	case *domain.Progress:
		s.mu.Lock()
		js := s.jobs[e.GenerationID]
		dead := js != nil && js.terminal
		s.mu.Unlock()
		if dead {
			return
		}
		s.out.Emit(ev)

	case *domain.Failed:
		s.mu.Lock()
		js := s.jobs[e.GenerationID]
		if js != nil {
			if js.terminal {
				s.mu.Unlock()
				return
			}
			js.terminal = true
		}
		s.mu.Unlock()
		s.reg.Remove(e.GenerationID)
		s.out.Emit(ev)

	case *domain.Complete:
		s.completeJob(e)

	default:
		s.out.Emit(ev)
	}
}

func (s *Session) completeJob(e *domain.Complete) {
	s.mu.Lock()
	js := s.jobs[e.GenerationID]
	if js == nil {
		s.mu.Unlock()
		s.out.Emit(e)
		return
	}
	if js.terminal {
		s.mu.Unlock()
		return
	}
	js.terminal = true

	var creditsEv *domain.CreditsUpdated
	if js.groupID != "" && !s.debited[js.groupID] {
		s.debited[js.groupID] = true
		bal, err := s.app.ledger.Debit(s.connID, s.app.cost)
		if err != nil {
			s.log.Error("debit credits", "err", err)
		} else {
			creditsEv = &domain.CreditsUpdated{Credits: bal}
		}
	}
	record := s.finishedTrack(e, js)
	s.mu.Unlock()

	s.reg.Remove(e.GenerationID)
	if err := s.app.catalog.SaveTrack(record); err != nil {
		s.log.Error("save track", "id", e.GenerationID, "err", err)
	}
	s.out.Emit(e)
	if creditsEv != nil {
		s.out.Emit(creditsEv)
	}
}

func (s *Session) finishedTrack(e *domain.Complete, js *jobState) domain.Generation {
	now := time.Now().UTC()
	return domain.Generation{
		ID:          e.GenerationID,
		Prompt:      js.prompt,
		Title:       js.title,
		Status:      domain.StatusCompleted,
		Progress:    100,
		CoverImage:  js.cover,
		GroupID:     js.groupID,
		Variation:   js.variation,
		CreatedAt:   js.createdAt,
		CompletedAt: &now,
		Versions: []domain.GenerationVersion{{
			ID:           fmt.Sprintf("%s_r1", e.GenerationID),
			Version:      1,
			Duration:     e.Duration,
			WaveformData: e.WaveformData,
		}},
	}
}
