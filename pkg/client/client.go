// Package client implements the generation store used by the web player:
// a per-tab mirror of job state fed by server events, the command surface
// the view layer calls, and a local fallback simulation that keeps the
// demo working when the server is unreachable.
package client

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"songforge/internal/registry"
	"songforge/internal/sim"
	"songforge/internal/synth"
	"songforge/pkg/domain"
)

// Config tunes one store instance.
type Config struct {
	// ServerURL is the websocket endpoint. Leave empty to run offline.
	ServerURL string

	StartingCredits int
	GenerationCost  int
	Stagger         time.Duration
	Sim             sim.Config

	// OnChange is invoked after every state mutation, outside the store
	// lock. The view layer uses it to re-render.
	OnChange func()
}

// Store is the client-side generation state container. All methods are
// safe for concurrent use; event application and local simulation ticks
// serialize on the store lock.
type Store struct {
	url      string
	cost     int
	stagger  time.Duration
	onChange func()
	log      *slog.Logger

	sim *sim.Simulator
	reg *registry.Registry

	mu          sync.Mutex
	conn        *websocket.Conn
	writeMu     sync.Mutex
	generations map[string]*domain.Generation
	order       []string
	credits     int
	debited     map[string]bool
	rejected    string
	nowPlaying  string
	playing     bool
}

// New builds a store. It starts offline; call Connect to go live.
func New(cfg Config) *Store {
	if cfg.StartingCredits <= 0 {
		cfg.StartingCredits = 120
	}
	if cfg.GenerationCost <= 0 {
		cfg.GenerationCost = 20
	}
	if cfg.Stagger <= 0 {
		cfg.Stagger = 300 * time.Millisecond
	}
	s := &Store{
		url:         cfg.ServerURL,
		cost:        cfg.GenerationCost,
		stagger:     cfg.Stagger,
		onChange:    cfg.OnChange,
		log:         slog.Default().With("component", "client-store"),
		reg:         registry.New(),
		generations: make(map[string]*domain.Generation),
		credits:     cfg.StartingCredits,
		debited:     make(map[string]bool),
	}
	s.sim = sim.New(cfg.Sim, sim.EmitterFunc(s.applyLocal))
	return s
}

// Connect dials the server and starts mirroring its event stream. On
// error the store stays in offline mode and remains fully usable.
func (s *Store) Connect() error {
	if s.url == "" {
		return fmt.Errorf("no server url configured")
	}
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	go s.readLoop(conn)
	return nil
}

func (s *Store) readLoop(conn *websocket.Conn) {
	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Warn("server stream closed, falling back to local simulation", "err", err)
			return
		}
		ev, err := domain.DecodeEvent(data)
		if err != nil {
			s.log.Warn("invalid event frame", "err", err)
			continue
		}
		s.Apply(ev)
	}
}

// Online reports whether the server stream is live.
func (s *Store) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

func (s *Store) sendCommand(cmd domain.Command) bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return false
	}
	data, err := domain.EncodeCommand(cmd)
	if err != nil {
		s.log.Error("encode command", "type", cmd.CommandType(), "err", err)
		return false
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.Warn("command send failed", "err", err)
		return false
	}
	return true
}

// SubmitPrompt requests a paired generation and returns the group id.
// Online, records are created only when the server announces them;
// offline, the local fallback creates and simulates them immediately.
func (s *Store) SubmitPrompt(prompt string) string {
	groupID := "grp_" + uuid.NewString()
	if s.sendCommand(&domain.StartPaired{GroupID: groupID, Prompt: prompt}) {
		return groupID
	}
	s.submitLocal(groupID, prompt)
	return groupID
}

// submitLocal mirrors the server's paired-start path: credit check
// first, then both records, then two staggered simulation runs.
func (s *Store) submitLocal(groupID, prompt string) {
	s.mu.Lock()
	if s.credits < s.cost {
		s.rejected = prompt
		s.mu.Unlock()
		s.notify()
		return
	}
	title := synth.Title(prompt)
	cover := synth.RandomCover()
	idV1 := fmt.Sprintf("%s_v1", groupID)
	idV2 := fmt.Sprintf("%s_v2", groupID)
	now := time.Now().UTC()
	s.insertLocked(&domain.Generation{
		ID: idV1, Prompt: prompt, Title: title, Status: domain.StatusPending,
		CoverImage: cover, GroupID: groupID, Variation: 1, CreatedAt: now,
	})
	s.insertLocked(&domain.Generation{
		ID: idV2, Prompt: prompt, Title: title, Status: domain.StatusPending,
		CoverImage: cover, GroupID: groupID, Variation: 2, CreatedAt: now,
	})
	s.mu.Unlock()
	s.notify()

	if run := s.sim.Start(idV1, prompt); run != nil {
		s.reg.Put(idV1, run)
	}
	if run := s.sim.StartAfter(idV2, prompt, s.stagger); run != nil {
		s.reg.Put(idV2, run)
	}
}

// applyLocal feeds fallback-simulation events through the same path as
// server events, adding the local once-per-group debit on completion.
func (s *Store) applyLocal(ev domain.Event) {
	s.Apply(ev)
	if e, ok := ev.(*domain.Complete); ok {
		s.mu.Lock()
		g := s.generations[e.GenerationID]
		if g != nil && g.GroupID != "" && !s.debited[g.GroupID] {
			s.debited[g.GroupID] = true
			s.credits = max(0, s.credits-s.cost)
		}
		s.mu.Unlock()
		s.notify()
	}
}

// Retry resets the job and reruns it, remotely or locally. A job with no
// live timer simply starts one. The superseded run is canceled before
// the record is reset; Cancel is synchronous with in-flight ticks, so no
// stale terminal event can land after the reset and re-wedge the job.
func (s *Store) Retry(jobID string) {
	s.reg.Cancel(jobID)

	s.mu.Lock()
	g, ok := s.generations[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	prompt := g.Prompt
	g.Status = domain.StatusPending
	g.Progress = 0
	g.StatusMessage = "Retrying..."
	g.Error = ""
	s.mu.Unlock()
	s.notify()

	if s.sendCommand(&domain.Retry{GenerationID: jobID, Prompt: prompt}) {
		return
	}
	if run := s.sim.Start(jobID, prompt); run != nil {
		s.reg.Put(jobID, run)
	}
}

// Remove deletes the job record. Removing the playing track clears
// playback.
func (s *Store) Remove(jobID string) {
	s.reg.Cancel(jobID)
	s.mu.Lock()
	if _, ok := s.generations[jobID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.generations, jobID)
	for i, id := range s.order {
		if id == jobID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.nowPlaying == jobID {
		s.nowPlaying = ""
		s.playing = false
	}
	s.mu.Unlock()
	s.notify()
}

// Apply folds one server (or fallback) event into the store. Events for
// unknown ids are no-ops; events for jobs already terminal are dropped
// unless a retry reset them first.
func (s *Store) Apply(ev domain.Event) {
	s.mu.Lock()
	switch e := ev.(type) {
	case *domain.GenerationStarted:
		if _, ok := s.generations[e.GenerationID]; !ok {
			s.insertLocked(&domain.Generation{
				ID:        e.GenerationID,
				Status:    domain.StatusPending,
				CreatedAt: time.Now().UTC(),
			})
		}

	case *domain.PairedStarted:
		now := time.Now().UTC()
		for i, id := range e.GenerationIDs {
			if _, ok := s.generations[id]; ok {
				continue
			}
			s.insertLocked(&domain.Generation{
				ID:         id,
				Prompt:     e.Prompt,
				Title:      e.Title,
				Status:     domain.StatusPending,
				CoverImage: e.CoverImage,
				GroupID:    e.GroupID,
				Variation:  i + 1,
				CreatedAt:  now,
			})
		}

	case *domain.Progress:
		g := s.generations[e.GenerationID]
		if g == nil {
			s.mu.Unlock()
			return
		}
		// A zero-progress event is the start of a fresh run: a retry
		// acknowledged by the server after a stale terminal event from
		// the superseded run already landed. It clears terminal state so
		// the retried sequence is applied; any other progress for a
		// terminal job is a stale frame and is dropped.
		if g.Status.Terminal() && e.Progress != 0 {
			s.mu.Unlock()
			return
		}
		g.Status = domain.StatusGenerating
		g.Progress = e.Progress
		g.StatusMessage = e.Message
		g.Error = ""

	case *domain.Complete:
		g := s.generations[e.GenerationID]
		if g == nil || g.Status.Terminal() {
			s.mu.Unlock()
			return
		}
		now := time.Now().UTC()
		g.Status = domain.StatusCompleted
		g.Progress = 100
		g.StatusMessage = ""
		g.IsNew = true
		g.CompletedAt = &now
		g.Versions = []domain.GenerationVersion{{
			ID:           fmt.Sprintf("%s_r1", e.GenerationID),
			Version:      1,
			Duration:     e.Duration,
			WaveformData: e.WaveformData,
		}}

	case *domain.Failed:
		g := s.generations[e.GenerationID]
		if g == nil || g.Status.Terminal() {
			s.mu.Unlock()
			return
		}
		g.Status = domain.StatusFailed
		g.Error = e.Error
		g.StatusMessage = ""

	case *domain.InsufficientCredits:
		s.rejected = e.Prompt

	case *domain.CreditsUpdated:
		s.credits = e.Credits
	}
	s.mu.Unlock()
	s.notify()
}

// insertLocked prepends; the view renders newest first.
func (s *Store) insertLocked(g *domain.Generation) {
	s.generations[g.ID] = g
	s.order = append([]string{g.ID}, s.order...)
}

// Generations returns a snapshot of all records, newest first.
func (s *Store) Generations() []domain.Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]domain.Generation, 0, len(s.order))
	for _, id := range s.order {
		if g, ok := s.generations[id]; ok {
			res = append(res, *g)
		}
	}
	return res
}

// Get returns one record by id.
func (s *Store) Get(jobID string) (domain.Generation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.generations[jobID]
	if !ok {
		return domain.Generation{}, false
	}
	return *g, true
}

// Credits returns the mirrored balance.
func (s *Store) Credits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits
}

// RejectedPrompt returns the prompt of the last submission rejected for
// insufficient credits, for the view's error banner.
func (s *Store) RejectedPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

// PromptPlaceholder returns a suggestion for an empty prompt input.
func (s *Store) PromptPlaceholder() string {
	return synth.RandomPlaceholder()
}

// Play starts playback of a completed track.
func (s *Store) Play(jobID string) {
	s.mu.Lock()
	g, ok := s.generations[jobID]
	if !ok || g.Status != domain.StatusCompleted {
		s.mu.Unlock()
		return
	}
	s.nowPlaying = jobID
	s.playing = true
	s.mu.Unlock()
	s.notify()
}

// Pause stops playback without clearing the current track.
func (s *Store) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
	s.notify()
}

// NowPlaying returns the current track id and whether audio is playing.
func (s *Store) NowPlaying() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowPlaying, s.playing
}

// ToggleLike flips the like flag; liking clears a dislike.
func (s *Store) ToggleLike(jobID string) {
	s.mu.Lock()
	if g, ok := s.generations[jobID]; ok {
		g.IsLiked = !g.IsLiked
		if g.IsLiked {
			g.IsDisliked = false
		}
	}
	s.mu.Unlock()
	s.notify()
}

// ToggleDislike flips the dislike flag; disliking clears a like.
func (s *Store) ToggleDislike(jobID string) {
	s.mu.Lock()
	if g, ok := s.generations[jobID]; ok {
		g.IsDisliked = !g.IsDisliked
		if g.IsDisliked {
			g.IsLiked = false
		}
	}
	s.mu.Unlock()
	s.notify()
}

// MarkAllSeen clears the new-track badges.
func (s *Store) MarkAllSeen() {
	s.mu.Lock()
	for _, g := range s.generations {
		g.IsNew = false
	}
	s.mu.Unlock()
	s.notify()
}

// Close cancels local timers and drops the server connection.
func (s *Store) Close() {
	s.reg.CancelAll()
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *Store) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
