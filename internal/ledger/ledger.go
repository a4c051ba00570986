package ledger

import (
	"context"
	"errors"
	"strings"
)

// Account is a snapshot of a quota ledger row.
type Account struct {
	UserID  string `json:"userId"`
	Balance int64  `json:"balance"`
}

// Sentinel errors returned by ledger implementations. Anything else wraps an
// underlying storage failure and must be treated as a 500-class error, never
// as an authorization failure.
var (
	// ErrNotFound indicates no account exists for the user.
	ErrNotFound = errors.New("ledger: account not found")
	// ErrInsufficient indicates the account exists but its balance is zero.
	ErrInsufficient = errors.New("ledger: balance exhausted")
)

// NormalizeUserID canonicalizes a user identity for use as a ledger key.
// Lookups are case-insensitive; the stored key is normalized once, at creation.
func NormalizeUserID(userID string) string {
	return strings.ToLower(strings.TrimSpace(userID))
}

// Ledger is a single-row-per-user durable store of remaining credits.
//
// Implementations must guarantee that ConsumeCredit never drives a balance
// negative and never loses a decrement under concurrent callers, and that
// GetOrCreate resolves concurrent first-time provisioning through a store
// uniqueness constraint. The ledger does not verify identity; authorization
// is the caller's responsibility.
type Ledger interface {
	// Get is a pure read with no side effects and no provisioning.
	Get(ctx context.Context, userID string) (Account, error)
	// GetOrCreate reads the account, inserting a row with defaultBalance when
	// absent. The returned bool reports whether this call created the row.
	GetOrCreate(ctx context.Context, userID string, defaultBalance int64) (Account, bool, error)
	// AddCredits atomically increments the balance of an existing account.
	AddCredits(ctx context.Context, userID string, credits int64) (Account, error)
	// ConsumeCredit atomically decrements the balance by one when it is
	// positive. Returns ErrInsufficient (with the current account) when the
	// balance is already zero.
	ConsumeCredit(ctx context.Context, userID string) (Account, error)
	// SetBalance overwrites the balance of an existing account.
	SetBalance(ctx context.Context, userID string, balance int64) (Account, error)
}
