// Package app wires the simulation core together and owns the
// per-connection sessions driving it.
package app

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"songforge/internal/catalog"
	"songforge/internal/credits"
	"songforge/internal/sim"
	"songforge/internal/synth"
	"songforge/internal/util"
	"songforge/pkg/domain"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	StartingCredits int
	GenerationCost  int
	Stagger         time.Duration
	Sim             sim.Config

	// Injection points for tests.
	Catalog catalog.Store
	Ledger  credits.Ledger
}

// App is the core application service: stores, ledger, and the tuning
// shared by every session's simulator.
type App struct {
	catalog         catalog.Store
	ledger          credits.Ledger
	simCfg          sim.Config
	cost            int
	startingCredits int
	stagger         time.Duration

	mu     sync.RWMutex
	drafts map[string]domain.Generation
	order  []string
}

// New constructs the application. Without a database URL the catalog is
// in-memory and seeded with sample tracks; without a Redis address the
// ledger is in-memory. Both fallbacks keep the demo runnable with zero
// infrastructure.
func New(cfg Config) (*App, error) {
	if cfg.StartingCredits <= 0 {
		cfg.StartingCredits = credits.DefaultStartingBalance
	}
	if cfg.GenerationCost <= 0 {
		cfg.GenerationCost = credits.DefaultCost
	}
	if cfg.Stagger <= 0 {
		cfg.Stagger = 300 * time.Millisecond
	}

	store := cfg.Catalog
	if store == nil {
		if cfg.DatabaseURL != "" {
			gormStore, err := catalog.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres catalog: %w", err)
			}
			store = gormStore
		} else {
			store = catalog.NewMemoryStore()
		}
		if err := catalog.SeedSamples(store); err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
	}

	ledger := cfg.Ledger
	if ledger == nil {
		if cfg.RedisAddr != "" {
			ledger = credits.NewRedisLedger(cfg.RedisAddr, cfg.RedisPassword, "", cfg.StartingCredits)
		} else {
			ledger = credits.NewMemoryLedger(cfg.StartingCredits)
		}
	}

	return &App{
		catalog:         store,
		ledger:          ledger,
		simCfg:          cfg.Sim,
		cost:            cfg.GenerationCost,
		startingCredits: cfg.StartingCredits,
		stagger:         cfg.Stagger,
		drafts:          make(map[string]domain.Generation),
	}, nil
}

// Catalog exposes the completed-track store.
func (a *App) Catalog() catalog.Store { return a.catalog }

// Profile returns the demo account shown in the profile surface. Fresh
// connections start from its MaxCredits balance.
func (a *App) Profile() domain.UserProfile {
	return domain.UserProfile{
		ID:          "user_demo",
		Username:    "demo",
		DisplayName: "Demo Artist",
		Credits:     a.startingCredits,
		MaxCredits:  a.startingCredits,
	}
}

// CreateGeneration registers a pending generation draft from the REST
// surface and returns its skeleton record.
func (a *App) CreateGeneration(prompt string) (domain.Generation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return domain.Generation{}, ErrEmptyPrompt
	}
	g := domain.Generation{
		ID:         "gen_" + util.NewID(),
		Prompt:     prompt,
		Title:      synth.Title(prompt),
		Status:     domain.StatusPending,
		Progress:   0,
		CoverImage: synth.RandomCover(),
		Versions:   []domain.GenerationVersion{},
		CreatedAt:  time.Now().UTC(),
	}
	a.mu.Lock()
	a.drafts[g.ID] = g
	a.order = append(a.order, g.ID)
	a.mu.Unlock()
	return g, nil
}

// ListGenerations returns the REST-created drafts in creation order.
func (a *App) ListGenerations() []domain.Generation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res := make([]domain.Generation, 0, len(a.order))
	for _, id := range a.order {
		if g, ok := a.drafts[id]; ok {
			res = append(res, g)
		}
	}
	return res
}
