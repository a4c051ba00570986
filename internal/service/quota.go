package service

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/teslabridge/quotaserver/internal/identity"
	"github.com/teslabridge/quotaserver/internal/ledger"
	"github.com/teslabridge/quotaserver/internal/models"
	"github.com/teslabridge/quotaserver/internal/usage"
)

// Sentinel errors exposed to the request boundary. They stay distinct
// end-to-end: a missing account is never reported as an authorization
// failure and vice versa. Anything else is a 500-class service error.
var (
	// ErrValidation indicates a bad or missing request parameter.
	ErrValidation = errors.New("quota: invalid request")
	// ErrUnauthorized indicates a missing, invalid, or mismatched credential.
	ErrUnauthorized = errors.New("quota: unauthorized")
	// ErrNotFound indicates the operation requires a pre-existing account.
	ErrNotFound = errors.New("quota: account not found")
)

// Quota orchestrates the identity verifier and the ledger.
//
// Authorization policy: verification is required for any operation that
// provisions or mutates an account, never for pure reads of existing rows.
type Quota struct {
	verifier       identity.Verifier
	store          ledger.Ledger
	recorder       *usage.Recorder
	defaultBalance int64
}

// NewQuota constructs the quota service. The recorder may be nil.
func NewQuota(verifier identity.Verifier, store ledger.Ledger, recorder *usage.Recorder, defaultBalance int64) *Quota {
	return &Quota{
		verifier:       verifier,
		store:          store,
		recorder:       recorder,
		defaultBalance: defaultBalance,
	}
}

// GetBalance returns the account for userID, lazily provisioning it with the
// default balance when a verifying credential is supplied. It never mutates
// an existing balance.
//
// When userID is empty the identity is resolved from the credential instead.
func (q *Quota) GetBalance(ctx context.Context, userID, credential string) (ledger.Account, error) {
	normalized := ledger.NormalizeUserID(userID)
	verified := false

	if normalized == "" {
		if credential == "" {
			return ledger.Account{}, fmt.Errorf("%w: userId is required", ErrValidation)
		}
		resolved, errResolve := q.verifier.Resolve(ctx, credential)
		if errResolve != nil {
			return ledger.Account{}, ErrUnauthorized
		}
		normalized = ledger.NormalizeUserID(resolved)
		verified = true
	}

	account, errGet := q.store.Get(ctx, normalized)
	if errGet == nil {
		return account, nil
	}
	if !errors.Is(errGet, ledger.ErrNotFound) {
		log.Errorf("quota: balance lookup for %s failed: %v", normalized, errGet)
		return ledger.Account{}, fmt.Errorf("quota: balance lookup failed")
	}

	// Provisioning a new account requires a verified credential.
	if credential == "" {
		return ledger.Account{}, ErrNotFound
	}
	if !verified {
		if errVerify := q.verifier.Verify(ctx, credential, normalized); errVerify != nil {
			return ledger.Account{}, ErrUnauthorized
		}
	}
	return q.provision(ctx, normalized)
}

// AddCredits adds a positive number of credits to an existing account. The
// credential must verify as the target user before any ledger access.
func (q *Quota) AddCredits(ctx context.Context, userID string, credits int64, credential string) (ledger.Account, error) {
	normalized := ledger.NormalizeUserID(userID)
	if normalized == "" {
		return ledger.Account{}, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if credits <= 0 {
		return ledger.Account{}, fmt.Errorf("%w: credits must be a positive integer", ErrValidation)
	}
	if credential == "" {
		return ledger.Account{}, ErrUnauthorized
	}
	if errVerify := q.verifier.Verify(ctx, credential, normalized); errVerify != nil {
		return ledger.Account{}, ErrUnauthorized
	}

	account, errAdd := q.store.AddCredits(ctx, normalized, credits)
	if errAdd != nil {
		if errors.Is(errAdd, ledger.ErrNotFound) {
			return ledger.Account{}, ErrNotFound
		}
		log.Errorf("quota: add credits for %s failed: %v", normalized, errAdd)
		return ledger.Account{}, fmt.Errorf("quota: add credits failed")
	}

	if q.recorder != nil {
		q.recorder.Record(ctx, normalized, models.UsageKindTopUp, credits, account.Balance, nil)
	}
	return account, nil
}

// ConsumeCredit decrements the balance by one. The returned bool reports
// whether a credit was actually consumed; a zero-balance account yields a
// no-op outcome without requiring a valid credential.
func (q *Quota) ConsumeCredit(ctx context.Context, userID, credential string) (ledger.Account, bool, error) {
	normalized := ledger.NormalizeUserID(userID)
	if normalized == "" {
		return ledger.Account{}, false, fmt.Errorf("%w: userId is required", ErrValidation)
	}

	account, errGet := q.store.Get(ctx, normalized)
	switch {
	case errors.Is(errGet, ledger.ErrNotFound):
		// Lazy provisioning path: only with a credential that verifies.
		if credential == "" {
			return ledger.Account{}, false, ErrNotFound
		}
		if errVerify := q.verifier.Verify(ctx, credential, normalized); errVerify != nil {
			return ledger.Account{}, false, ErrUnauthorized
		}
		provisioned, errProvision := q.provision(ctx, normalized)
		if errProvision != nil {
			return ledger.Account{}, false, errProvision
		}
		account = provisioned
	case errGet != nil:
		log.Errorf("quota: consume lookup for %s failed: %v", normalized, errGet)
		return ledger.Account{}, false, fmt.Errorf("quota: consume failed")
	}

	// Exhausted accounts are a no-op; verification is only forced on the
	// path that would actually decrement.
	if account.Balance <= 0 {
		return account, false, nil
	}

	if credential == "" {
		return ledger.Account{}, false, ErrUnauthorized
	}
	if errVerify := q.verifier.Verify(ctx, credential, normalized); errVerify != nil {
		return ledger.Account{}, false, ErrUnauthorized
	}

	consumed, errConsume := q.store.ConsumeCredit(ctx, normalized)
	switch {
	case errors.Is(errConsume, ledger.ErrInsufficient):
		// Lost the race to the last credit; report the zero-balance no-op.
		return consumed, false, nil
	case errors.Is(errConsume, ledger.ErrNotFound):
		return ledger.Account{}, false, ErrNotFound
	case errConsume != nil:
		log.Errorf("quota: consume for %s failed: %v", normalized, errConsume)
		return ledger.Account{}, false, fmt.Errorf("quota: consume failed")
	}

	if q.recorder != nil {
		q.recorder.Record(ctx, normalized, models.UsageKindConsume, -1, consumed.Balance, nil)
	}
	return consumed, true, nil
}

// provision creates the account with the default balance, tolerating a
// concurrent creation by another caller.
func (q *Quota) provision(ctx context.Context, normalized string) (ledger.Account, error) {
	account, created, errCreate := q.store.GetOrCreate(ctx, normalized, q.defaultBalance)
	if errCreate != nil {
		log.Errorf("quota: provision %s failed: %v", normalized, errCreate)
		return ledger.Account{}, fmt.Errorf("quota: provision failed")
	}
	if created && q.recorder != nil {
		q.recorder.Record(ctx, normalized, models.UsageKindProvision, q.defaultBalance, account.Balance, nil)
	}
	return account, nil
}
