package ledger

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// RedisLedger is a redis-backed Ledger. Each account is a single string key
// holding the balance; Lua scripts keep the conditional mutations atomic, so
// it is safe for multi-instance deployments.
type RedisLedger struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ Ledger = (*RedisLedger)(nil)

// RedisOption configures RedisLedger.
type RedisOption func(*RedisLedger)

// WithKeyPrefix sets the redis key prefix (default "quota:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLedger) { l.keyPrefix = prefix }
}

// NewRedisLedger constructs a RedisLedger. The client must be a connected
// *goredis.Client or *goredis.ClusterClient.
func NewRedisLedger(client goredis.Cmdable, opts ...RedisOption) *RedisLedger {
	l := &RedisLedger{
		client:    client,
		keyPrefix: "quota:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLedger) accountKey(userID string) string {
	return l.keyPrefix + userID
}

// consumeScript atomically decrements a positive balance.
// KEYS[1] = account key
//
// Returns:
//
//	>= 0 = new balance after decrement
//	-1   = account not found
//	-2   = balance already zero
var consumeScript = goredis.NewScript(`
local balance = redis.call('GET', KEYS[1])
if not balance then
  return -1
end
balance = tonumber(balance)
if balance <= 0 then
  return -2
end
return redis.call('DECR', KEYS[1])
`)

// addScript atomically increments the balance of an existing account.
// KEYS[1] = account key
// ARGV[1] = credits
//
// Returns the new balance, or -1 when the account does not exist.
var addScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

// setBalanceScript overwrites the balance of an existing account.
// KEYS[1] = account key
// ARGV[1] = new balance
//
// Returns 1 on success, or -1 when the account does not exist.
var setBalanceScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

// getOrCreateScript inserts the default balance when the key is absent.
// KEYS[1] = account key
// ARGV[1] = default balance
//
// Returns {created, balance}.
var getOrCreateScript = goredis.NewScript(`
local created = redis.call('SETNX', KEYS[1], ARGV[1])
return {created, tonumber(redis.call('GET', KEYS[1]))}
`)

// Get implements Ledger.
func (l *RedisLedger) Get(ctx context.Context, userID string) (Account, error) {
	normalized := NormalizeUserID(userID)

	balance, errGet := l.client.Get(ctx, l.accountKey(normalized)).Int64()
	if errors.Is(errGet, goredis.Nil) {
		return Account{}, ErrNotFound
	}
	if errGet != nil {
		return Account{}, fmt.Errorf("ledger: redis get %s: %w", normalized, errGet)
	}
	return Account{UserID: normalized, Balance: balance}, nil
}

// GetOrCreate implements Ledger. SETNX resolves concurrent first-time
// provisioning; the loser reads the winner's row.
func (l *RedisLedger) GetOrCreate(ctx context.Context, userID string, defaultBalance int64) (Account, bool, error) {
	normalized := NormalizeUserID(userID)

	raw, errRun := getOrCreateScript.Run(ctx, l.client, []string{l.accountKey(normalized)}, defaultBalance).Slice()
	if errRun != nil {
		return Account{}, false, fmt.Errorf("ledger: redis provision %s: %w", normalized, errRun)
	}
	if len(raw) != 2 {
		return Account{}, false, fmt.Errorf("ledger: redis provision %s: unexpected reply %v", normalized, raw)
	}
	created, okCreated := raw[0].(int64)
	balance, okBalance := raw[1].(int64)
	if !okCreated || !okBalance {
		return Account{}, false, fmt.Errorf("ledger: redis provision %s: unexpected reply %v", normalized, raw)
	}
	return Account{UserID: normalized, Balance: balance}, created == 1, nil
}

// AddCredits implements Ledger.
func (l *RedisLedger) AddCredits(ctx context.Context, userID string, credits int64) (Account, error) {
	normalized := NormalizeUserID(userID)

	balance, errRun := addScript.Run(ctx, l.client, []string{l.accountKey(normalized)}, credits).Int64()
	if errRun != nil {
		return Account{}, fmt.Errorf("ledger: redis add credits %s: %w", normalized, errRun)
	}
	if balance == -1 {
		return Account{}, ErrNotFound
	}
	return Account{UserID: normalized, Balance: balance}, nil
}

// ConsumeCredit implements Ledger.
func (l *RedisLedger) ConsumeCredit(ctx context.Context, userID string) (Account, error) {
	normalized := NormalizeUserID(userID)

	balance, errRun := consumeScript.Run(ctx, l.client, []string{l.accountKey(normalized)}).Int64()
	if errRun != nil {
		return Account{}, fmt.Errorf("ledger: redis consume %s: %w", normalized, errRun)
	}
	switch balance {
	case -1:
		return Account{}, ErrNotFound
	case -2:
		return Account{UserID: normalized, Balance: 0}, ErrInsufficient
	default:
		return Account{UserID: normalized, Balance: balance}, nil
	}
}

// SetBalance implements Ledger.
func (l *RedisLedger) SetBalance(ctx context.Context, userID string, balance int64) (Account, error) {
	normalized := NormalizeUserID(userID)
	if balance < 0 {
		return Account{}, fmt.Errorf("ledger: negative balance %d for %s", balance, normalized)
	}

	set, errRun := setBalanceScript.Run(ctx, l.client, []string{l.accountKey(normalized)}, balance).Int64()
	if errRun != nil {
		return Account{}, fmt.Errorf("ledger: redis set balance %s: %w", normalized, errRun)
	}
	if set == -1 {
		return Account{}, ErrNotFound
	}
	return Account{UserID: normalized, Balance: balance}, nil
}
