package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/teslabridge/quotaserver/internal/models"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) *GormLedger {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		t.Fatalf("sql db: %v", errDB)
	}
	// A single connection keeps the in-memory database shared across goroutines.
	sqlDB.SetMaxOpenConns(1)

	if errMigrate := conn.AutoMigrate(&models.QuotaAccount{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewGormLedger(conn)
}

func TestGetReturnsNotFoundForUnknownUser(t *testing.T) {
	store := newTestLedger(t)

	_, errGet := store.Get(context.Background(), "nobody@example.com")
	if !errors.Is(errGet, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errGet)
	}
}

func TestGetOrCreateNormalizesUserID(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	account, created, errCreate := store.GetOrCreate(ctx, "  User@Example.COM ", 10)
	if errCreate != nil {
		t.Fatalf("get or create: %v", errCreate)
	}
	if !created {
		t.Fatalf("expected account to be created")
	}
	if account.UserID != "user@example.com" {
		t.Fatalf("stored key not normalized: %q", account.UserID)
	}

	found, errGet := store.Get(ctx, "USER@example.com")
	if errGet != nil {
		t.Fatalf("case-insensitive lookup failed: %v", errGet)
	}
	if found.Balance != 10 {
		t.Fatalf("balance = %d, want 10", found.Balance)
	}
}

func TestGetOrCreateProvisionsExactlyOnce(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	createdCount := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			account, created, errCreate := store.GetOrCreate(ctx, "new@example.com", 10)
			if errCreate != nil {
				t.Errorf("get or create: %v", errCreate)
				return
			}
			if account.Balance != 10 {
				t.Errorf("balance = %d, want 10", account.Balance)
			}
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)

	wins := 0
	for created := range createdCount {
		if created {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one provisioning winner, got %d", wins)
	}

	var rows int64
	if errCount := store.db.Model(&models.QuotaAccount{}).Count(&rows).Error; errCount != nil {
		t.Fatalf("count rows: %v", errCount)
	}
	if rows != 1 {
		t.Fatalf("expected one row, got %d", rows)
	}
}

func TestConsumeCreditDecrementsUntilExhausted(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	if _, _, errCreate := store.GetOrCreate(ctx, "a@x.com", 2); errCreate != nil {
		t.Fatalf("get or create: %v", errCreate)
	}

	account, errConsume := store.ConsumeCredit(ctx, "a@x.com")
	if errConsume != nil {
		t.Fatalf("first consume: %v", errConsume)
	}
	if account.Balance != 1 {
		t.Fatalf("balance = %d, want 1", account.Balance)
	}

	if account, errConsume = store.ConsumeCredit(ctx, "a@x.com"); errConsume != nil {
		t.Fatalf("second consume: %v", errConsume)
	}
	if account.Balance != 0 {
		t.Fatalf("balance = %d, want 0", account.Balance)
	}

	account, errConsume = store.ConsumeCredit(ctx, "a@x.com")
	if !errors.Is(errConsume, ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", errConsume)
	}
	if account.Balance != 0 {
		t.Fatalf("exhausted balance = %d, want 0", account.Balance)
	}
}

func TestConsumeCreditUnknownUser(t *testing.T) {
	store := newTestLedger(t)

	_, errConsume := store.ConsumeCredit(context.Background(), "ghost@example.com")
	if !errors.Is(errConsume, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", errConsume)
	}
}

func TestConcurrentConsumeNeverOverdraws(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	const balance = 3
	const callers = 10
	if _, _, errCreate := store.GetOrCreate(ctx, "race@x.com", balance); errCreate != nil {
		t.Fatalf("get or create: %v", errCreate)
	}

	var wg sync.WaitGroup
	outcomes := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errConsume := store.ConsumeCredit(ctx, "race@x.com")
			outcomes <- errConsume
		}()
	}
	wg.Wait()
	close(outcomes)

	succeeded, exhausted := 0, 0
	for errConsume := range outcomes {
		switch {
		case errConsume == nil:
			succeeded++
		case errors.Is(errConsume, ErrInsufficient):
			exhausted++
		default:
			t.Fatalf("unexpected consume error: %v", errConsume)
		}
	}
	if succeeded != balance {
		t.Fatalf("successful consumes = %d, want %d", succeeded, balance)
	}
	if exhausted != callers-balance {
		t.Fatalf("exhausted outcomes = %d, want %d", exhausted, callers-balance)
	}

	final, errGet := store.Get(ctx, "race@x.com")
	if errGet != nil {
		t.Fatalf("final get: %v", errGet)
	}
	if final.Balance != 0 {
		t.Fatalf("final balance = %d, want 0", final.Balance)
	}
}

func TestAddCredits(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	if _, errAdd := store.AddCredits(ctx, "missing@x.com", 5); !errors.Is(errAdd, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing account, got %v", errAdd)
	}

	if _, _, errCreate := store.GetOrCreate(ctx, "b@x.com", 7); errCreate != nil {
		t.Fatalf("get or create: %v", errCreate)
	}
	account, errAdd := store.AddCredits(ctx, "b@x.com", 5)
	if errAdd != nil {
		t.Fatalf("add credits: %v", errAdd)
	}
	if account.Balance != 12 {
		t.Fatalf("balance = %d, want 12", account.Balance)
	}
}

func TestSetBalance(t *testing.T) {
	store := newTestLedger(t)
	ctx := context.Background()

	if _, errSet := store.SetBalance(ctx, "missing@x.com", 4); !errors.Is(errSet, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing account, got %v", errSet)
	}

	if _, _, errCreate := store.GetOrCreate(ctx, "c@x.com", 1); errCreate != nil {
		t.Fatalf("get or create: %v", errCreate)
	}
	account, errSet := store.SetBalance(ctx, "c@x.com", 42)
	if errSet != nil {
		t.Fatalf("set balance: %v", errSet)
	}
	if account.Balance != 42 {
		t.Fatalf("balance = %d, want 42", account.Balance)
	}

	if _, errSet = store.SetBalance(ctx, "c@x.com", -1); errSet == nil {
		t.Fatalf("expected error for negative balance")
	}
}
