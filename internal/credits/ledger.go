// Package credits keeps the per-connection consumable quota debited by
// accepted paired generations.
package credits

import (
	"sync"
)

// DefaultStartingBalance and DefaultCost are the deployed ledger tuning.
const (
	DefaultStartingBalance = 120
	DefaultCost            = 20
)

// Ledger tracks one integer balance per connection. Balances are bounded
// below at zero. CanAfford is a pure check; the debit point is decided by
// the caller's policy.
type Ledger interface {
	Initialize(connID string) (int, error)
	Balance(connID string) (int, error)
	CanAfford(connID string, cost int) (bool, error)
	Debit(connID string, cost int) (int, error)
	Release(connID string) error
}

// MemoryLedger keeps balances in-process.
type MemoryLedger struct {
	mu       sync.Mutex
	starting int
	balances map[string]int
}

// NewMemoryLedger builds an in-memory ledger with the given starting
// balance per connection.
func NewMemoryLedger(starting int) *MemoryLedger {
	if starting < 0 {
		starting = 0
	}
	return &MemoryLedger{starting: starting, balances: make(map[string]int)}
}

func (l *MemoryLedger) Initialize(connID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[connID] = l.starting
	return l.starting, nil
}

func (l *MemoryLedger) Balance(connID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[connID], nil
}

func (l *MemoryLedger) CanAfford(connID string, cost int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[connID] >= cost, nil
}

func (l *MemoryLedger) Debit(connID string, cost int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balances[connID] - cost
	if bal < 0 {
		bal = 0
	}
	l.balances[connID] = bal
	return bal, nil
}

func (l *MemoryLedger) Release(connID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.balances, connID)
	return nil
}
