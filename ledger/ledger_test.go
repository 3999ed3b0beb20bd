package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detofa/points-engine/ledger"
	"github.com/detofa/points-engine/storage"
	"github.com/detofa/points-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*ledger.Ledger, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.New(store), store
}

func seedUser(t *testing.T, store storage.Store, id string, balance int64) {
	t.Helper()
	err := store.CreateUser(context.Background(), &storage.User{
		ID:           id,
		Name:         "User " + id,
		Email:        id + "@example.com",
		Phone:        "+49" + id,
		PasswordHash: "x",
		Status:       storage.StatusActive,
		Balance:      balance,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
}

// =============================================================================
// CREDIT TESTS
// =============================================================================

func TestLedger_Credit_IncreasesBalance(t *testing.T) {
	led, store := newTestLedger(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", 100)

	newBalance, err := led.Credit(ctx, "u-1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(150), newBalance)

	balance, err := led.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), balance)
}

func TestLedger_Credit_ZeroAmount_Rejected(t *testing.T) {
	led, store := newTestLedger(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", 100)

	_, err := led.Credit(ctx, "u-1", 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestLedger_Credit_NegativeAmount_Rejected(t *testing.T) {
	led, store := newTestLedger(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", 100)

	_, err := led.Credit(ctx, "u-1", -10)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	balance, err := led.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance, "rejected credit should not touch the balance")
}

func TestLedger_Credit_UnknownUser(t *testing.T) {
	led, _ := newTestLedger(t)

	_, err := led.Credit(context.Background(), "nobody", 50)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

// =============================================================================
// DEBIT TESTS
// =============================================================================

func TestLedger_Debit_DecreasesBalance(t *testing.T) {
	led, store := newTestLedger(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", 100)

	err := led.Debit(ctx, "u-1", 40)
	require.NoError(t, err)

	balance, err := led.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), balance)
}

func TestLedger_Debit_ExactBalance_Allowed(t *testing.T) {
	// Draining the account to exactly zero is fine; only negative is not.

	led, store := newTestLedger(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", 100)

	err := led.Debit(ctx, "u-1", 100)
	require.NoError(t, err)

	balance, err := led.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestLedger_Debit_InsufficientFunds(t *testing.T) {
	// GIVEN: Balance 100
	// WHEN: Debiting 101
	// THEN: InsufficientFundsError, balance untouched

	led, store := newTestLedger(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", 100)

	err := led.Debit(ctx, "u-1", 101)
	assert.ErrorIs(t, err, storage.ErrInsufficientFunds)

	var insErr *storage.InsufficientFundsError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, int64(100), insErr.Available)
	assert.Equal(t, int64(101), insErr.Requested)

	balance, err := led.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance, "failed debit should not touch the balance")
}

func TestLedger_Debit_InvalidAmount_Rejected(t *testing.T) {
	led, store := newTestLedger(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", 100)

	assert.ErrorIs(t, led.Debit(ctx, "u-1", 0), ledger.ErrInvalidAmount)
	assert.ErrorIs(t, led.Debit(ctx, "u-1", -5), ledger.ErrInvalidAmount)
}

func TestLedger_Debit_UnknownUser(t *testing.T) {
	led, _ := newTestLedger(t)

	err := led.Debit(context.Background(), "nobody", 50)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

// =============================================================================
// CONCURRENT DEBIT TESTS
// =============================================================================

func TestLedger_ConcurrentDebits_NeverOverdraw(t *testing.T) {
	// GIVEN: Balance 100
	// WHEN: 10 goroutines each try to debit 30
	// THEN: Exactly 3 succeed, and the balance ends at 10

	led, store := newTestLedger(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", 100)

	const workers = 10
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			results <- led.Debit(ctx, "u-1", 30)
		}()
	}

	succeeded := 0
	for i := 0; i < workers; i++ {
		if err := <-results; err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, storage.ErrInsufficientFunds)
		}
	}

	assert.Equal(t, 3, succeeded)

	balance, err := led.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}
