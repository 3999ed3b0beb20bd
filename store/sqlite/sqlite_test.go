package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/detofa/points-engine/storage"
	"github.com/detofa/points-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUser(t *testing.T, store storage.Store, id, phone string, balance int64) {
	t.Helper()
	err := store.CreateUser(context.Background(), &storage.User{
		ID:           id,
		Name:         "User " + id,
		Email:        id + "@example.com",
		Phone:        phone,
		PasswordHash: "x",
		Status:       storage.StatusActive,
		Balance:      balance,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
}

// =============================================================================
// USER CONSTRAINT TESTS
// =============================================================================

func TestCreateUser_DuplicatePhone_Rejected(t *testing.T) {
	// The unique index on phone is the backstop against registration races.

	store := newTestStore(t)
	seedUser(t, store, "u-1", "+4911111", 0)

	err := store.CreateUser(context.Background(), &storage.User{
		ID:           "u-2",
		Name:         "Other",
		Email:        "other@example.com",
		Phone:        "+4911111",
		PasswordHash: "x",
		Status:       storage.StatusActive,
		CreatedAt:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicatePhone)
}

func TestUserByPhone_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 250)

	user, err := store.UserByPhone(ctx, "+4911111")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, int64(250), user.Balance)

	_, err = store.UserByPhone(ctx, "+4900000")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestCreateDeletionRequest_LeavesUserRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 0)

	require.NoError(t, store.CreateDeletionRequest(ctx, "u-1"))

	user, err := store.UserByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
}

// =============================================================================
// GUARDED DEBIT TESTS
// =============================================================================

func TestDebit_GuardAndWriteAreOneStatement(t *testing.T) {
	// GIVEN: Balance 100
	// WHEN: Debiting 60 then 60 again
	// THEN: First succeeds; second fails with the balance as it was after
	//        the first, never producing a negative balance

	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 100)

	require.NoError(t, store.Debit(ctx, "u-1", 60))

	err := store.Debit(ctx, "u-1", 60)
	var insErr *storage.InsufficientFundsError
	require.ErrorAs(t, err, &insErr)
	assert.Equal(t, int64(40), insErr.Available)
	assert.Equal(t, int64(60), insErr.Requested)

	balance, err := store.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)
}

func TestDebit_UnknownUser(t *testing.T) {
	store := newTestStore(t)

	err := store.Debit(context.Background(), "nobody", 10)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestCredit_ReturnsNewBalance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 10)

	balance, err := store.Credit(ctx, "u-1", 15)
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)
}

// =============================================================================
// CLAIM CONSTRAINT TESTS
// =============================================================================

func TestInsertClaim_DuplicatePair_Rejected(t *testing.T) {
	// This test bypasses the rewards engine to verify that the database
	// itself enforces one claim per (user, video). This is the last line
	// of defense against race conditions.

	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 0)
	require.NoError(t, store.CreateVideo(ctx, &storage.Video{
		ID: "v-1", Title: "t", URL: "u", RewardValue: 10, ViewLimit: 5,
		CreatedAt: time.Now().UTC(),
	}))

	first := &storage.Claim{ID: "c-1", UserID: "u-1", VideoID: "v-1", ClaimedAt: time.Now().UTC()}
	require.NoError(t, store.InsertClaim(ctx, first))

	second := &storage.Claim{ID: "c-2", UserID: "u-1", VideoID: "v-1", ClaimedAt: time.Now().UTC()}
	err := store.InsertClaim(ctx, second)
	assert.ErrorIs(t, err, storage.ErrDuplicateClaim)

	count, err := store.CountClaims(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that credits and then fails
	// WHEN: The function returns an error
	// THEN: The credit is rolled back

	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 100)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx storage.Store) error {
		if _, err := tx.Credit(ctx, "u-1", 50); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	balance, err := store.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance, "credit must be rolled back")
}

func TestWithTx_CommitOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 100)
	seedUser(t, store, "u-2", "+4922222", 0)

	err := store.WithTx(ctx, func(tx storage.Store) error {
		if err := tx.Debit(ctx, "u-1", 30); err != nil {
			return err
		}
		_, err := tx.Credit(ctx, "u-2", 30)
		return err
	})
	require.NoError(t, err)

	b1, _ := store.Balance(ctx, "u-1")
	b2, _ := store.Balance(ctx, "u-2")
	assert.Equal(t, int64(70), b1)
	assert.Equal(t, int64(30), b2)
}

func TestWithTx_ReadsSeeTransactionWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 100)

	err := store.WithTx(ctx, func(tx storage.Store) error {
		if _, err := tx.Credit(ctx, "u-1", 25); err != nil {
			return err
		}
		balance, err := tx.Balance(ctx, "u-1")
		if err != nil {
			return err
		}
		assert.Equal(t, int64(125), balance, "in-tx read sees the uncommitted credit")
		return nil
	})
	require.NoError(t, err)
}

func TestWithTx_NestedRunsInSameTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 0)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx storage.Store) error {
		return tx.WithTx(ctx, func(inner storage.Store) error {
			if _, err := inner.Credit(ctx, "u-1", 10); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	balance, err := store.Balance(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance, "inner failure rolls back the whole transaction")
}

// =============================================================================
// TRANSFER QUERY TESTS
// =============================================================================

func TestTransfersByUser_JoinsDisplayInfo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 0)
	seedUser(t, store, "u-2", "+4922222", 0)

	require.NoError(t, store.InsertTransfer(ctx, &storage.Transfer{
		ID: "t-1", FromUserID: "u-1", ToUserID: "u-2",
		Amount: 100, Fee: 3, Note: "lunch", CreatedAt: time.Now().UTC(),
	}))

	transfers, err := store.TransfersByUser(ctx, "u-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, transfers, 1)

	assert.Equal(t, "User u-1", transfers[0].FromName)
	assert.Equal(t, "+4911111", transfers[0].FromPhone)
	assert.Equal(t, "User u-2", transfers[0].ToName)
	assert.Equal(t, "+4922222", transfers[0].ToPhone)
}

func TestTransfersByUser_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 0)
	seedUser(t, store, "u-2", "+4922222", 0)

	base := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"t-old", "t-mid", "t-new"} {
		require.NoError(t, store.InsertTransfer(ctx, &storage.Transfer{
			ID: id, FromUserID: "u-1", ToUserID: "u-2",
			Amount: 100, Fee: 3, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	transfers, err := store.TransfersByUser(ctx, "u-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, transfers, 3)
	assert.Equal(t, "t-new", transfers[0].ID)
	assert.Equal(t, "t-old", transfers[2].ID)
}

// =============================================================================
// SCORE QUERY TESTS
// =============================================================================

func TestScores_InsertUpdateForDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 0)

	row := &storage.Score{
		ID: "s-1", UserID: "u-1", Game: "SNAKE", Day: "2026-03-10",
		BestScore: 50, Attempts: 1,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.InsertScore(ctx, row))

	require.NoError(t, store.UpdateScore(ctx, "s-1", 80))

	got, err := store.ScoreForDay(ctx, "u-1", "SNAKE", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(80), got.BestScore)
	assert.Equal(t, 2, got.Attempts, "UpdateScore increments the attempt counter")

	_, err = store.ScoreForDay(ctx, "u-1", "SNAKE", "2026-03-11")
	assert.ErrorIs(t, err, storage.ErrScoreNotFound)
}

func TestScoresByUser_FiltersOnUserAndUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 0)
	seedUser(t, store, "u-2", "+4922222", 0)

	old := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	recent := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertScore(ctx, &storage.Score{
		ID: "s-1", UserID: "u-1", Game: "SNAKE", Day: "2026-01-01",
		BestScore: 40, Attempts: 1, CreatedAt: old, UpdatedAt: old,
	}))
	require.NoError(t, store.InsertScore(ctx, &storage.Score{
		ID: "s-2", UserID: "u-1", Game: "TETRIS", Day: "2026-03-10",
		BestScore: 90, Attempts: 1, CreatedAt: recent, UpdatedAt: recent,
	}))
	require.NoError(t, store.InsertScore(ctx, &storage.Score{
		ID: "s-3", UserID: "u-2", Game: "SNAKE", Day: "2026-03-10",
		BestScore: 999, Attempts: 1, CreatedAt: recent, UpdatedAt: recent,
	}))

	rows, err := store.ScoresByUser(ctx, "u-1", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "only u-1's rows, across games")

	cutoff := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	rows, err = store.ScoresByUser(ctx, "u-1", &cutoff)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "s-2", rows[0].ID)
}

func TestScoresSince_FiltersOnUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "u-1", "+4911111", 0)
	seedUser(t, store, "u-2", "+4922222", 0)

	old := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	recent := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertScore(ctx, &storage.Score{
		ID: "s-old", UserID: "u-1", Game: "SNAKE", Day: "2026-01-01",
		BestScore: 99, Attempts: 1, CreatedAt: old, UpdatedAt: old,
	}))
	require.NoError(t, store.InsertScore(ctx, &storage.Score{
		ID: "s-new", UserID: "u-2", Game: "SNAKE", Day: "2026-03-10",
		BestScore: 10, Attempts: 1, CreatedAt: recent, UpdatedAt: recent,
	}))

	cutoff := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	entries, err := store.ScoresSince(ctx, "SNAKE", &cutoff)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "u-2", entries[0].UserID)
	assert.Equal(t, "User u-2", entries[0].UserName)

	entries, err = store.ScoresSince(ctx, "SNAKE", nil)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "nil cutoff means all-time")
}
