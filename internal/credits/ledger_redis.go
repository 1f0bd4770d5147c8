package credits

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// debitScript decrements with a floor at zero in one round trip.
var debitScript = redis.NewScript(`
local bal = tonumber(redis.call("GET", KEYS[1]) or "0")
bal = bal - tonumber(ARGV[1])
if bal < 0 then
  bal = 0
end
redis.call("SET", KEYS[1], bal)
return bal
`)

// RedisLedger keeps balances in Redis, letting a restarted demo server
// pick up where connections left off.
type RedisLedger struct {
	client   *redis.Client
	prefix   string
	starting int
}

// NewRedisLedger builds a Redis-backed ledger.
func NewRedisLedger(addr, password, prefix string, starting int) *RedisLedger {
	if prefix == "" {
		prefix = "songforge:credits"
	}
	if starting < 0 {
		starting = 0
	}
	return &RedisLedger{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix:   prefix,
		starting: starting,
	}
}

func (l *RedisLedger) key(connID string) string {
	return fmt.Sprintf("%s:%s", l.prefix, connID)
}

func (l *RedisLedger) Initialize(connID string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := l.client.Set(ctx, l.key(connID), l.starting, 0).Err(); err != nil {
		return 0, fmt.Errorf("initialize credits: %w", err)
	}
	return l.starting, nil
}

func (l *RedisLedger) Balance(connID string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	bal, err := l.client.Get(ctx, l.key(connID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read credits: %w", err)
	}
	return bal, nil
}

func (l *RedisLedger) CanAfford(connID string, cost int) (bool, error) {
	bal, err := l.Balance(connID)
	if err != nil {
		return false, err
	}
	return bal >= cost, nil
}

func (l *RedisLedger) Debit(connID string, cost int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	bal, err := debitScript.Run(ctx, l.client, []string{l.key(connID)}, cost).Int()
	if err != nil {
		return 0, fmt.Errorf("debit credits: %w", err)
	}
	return bal, nil
}

func (l *RedisLedger) Release(connID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := l.client.Del(ctx, l.key(connID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release credits: %w", err)
	}
	return nil
}
