/*
store.go - Persistence interface for accounts, transfers, claims, and scores

PURPOSE:
  Defines the interface between domain logic and the database. The interface
  is deliberately wide and flat: every domain package consumes the subset it
  needs, and store/sqlite implements the whole thing.

TRANSACTIONAL CONTRACT:
  WithTx runs a function against a transaction-scoped Store. Every read made
  inside the function sees the transaction's view, and every write commits or
  rolls back as one unit. Race-sensitive checks (balance before debit, claim
  count before insert) MUST re-run inside WithTx; a read taken outside the
  transaction is only good for cheap fast-rejection.

APPEND-ONLY ROWS:
  Transfer and Claim rows have no update or delete operations. Users are
  never deleted either: CreateDeletionRequest records the request and leaves
  the account row in place.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store (WAL mode, CHECK + unique indexes)
*/
package storage

import (
	"context"
	"time"
)

// Store is the persistence contract for the points engine.
//
// Balance mutations (Credit, Debit) are guarded at the storage layer:
// Debit fails rather than let a balance go negative, and both fail with
// ErrUserNotFound for unknown accounts.
type Store interface {
	// --- users / accounts ---

	// CreateUser inserts a new account row. Fails with ErrDuplicatePhone
	// if the phone number is already registered.
	CreateUser(ctx context.Context, u *User) error

	// UserByID returns the account row, or ErrUserNotFound.
	UserByID(ctx context.Context, id string) (*User, error)

	// UserByPhone resolves a phone number to an account, or ErrUserNotFound.
	UserByPhone(ctx context.Context, phone string) (*User, error)

	// Balance returns the current point balance, or ErrUserNotFound.
	Balance(ctx context.Context, userID string) (int64, error)

	// Credit adds amount (assumed positive) to the balance and returns the
	// new balance. Fails with ErrUserNotFound.
	Credit(ctx context.Context, userID string, amount int64) (int64, error)

	// Debit subtracts amount (assumed positive) from the balance. The
	// precondition balance >= amount is checked and applied in the same
	// statement; fails with an InsufficientFundsError otherwise.
	Debit(ctx context.Context, userID string, amount int64) error

	// CreateDeletionRequest records a pending account-deletion request.
	// The user row itself is left untouched.
	CreateDeletionRequest(ctx context.Context, userID string) error

	// --- transfers ---

	// InsertTransfer appends one immutable transfer record.
	InsertTransfer(ctx context.Context, t *Transfer) error

	// TransfersByUser returns transfers where the user is sender or
	// recipient, newest first, with party display info populated.
	TransfersByUser(ctx context.Context, userID string, limit, offset int) ([]Transfer, error)

	// CountTransfersByUser returns the total number of transfers involving
	// the user, for pagination.
	CountTransfersByUser(ctx context.Context, userID string) (int, error)

	// --- videos / reward claims ---

	// CreateVideo inserts a rewardable video.
	CreateVideo(ctx context.Context, v *Video) error

	// VideoByID returns the video row, or ErrVideoNotFound.
	VideoByID(ctx context.Context, id string) (*Video, error)

	// AvailableVideos lists videos the user has not claimed yet and that
	// are still under their view limit.
	AvailableVideos(ctx context.Context, userID string) ([]VideoStatus, error)

	// HasClaim reports whether a claim row exists for (userID, videoID).
	HasClaim(ctx context.Context, userID, videoID string) (bool, error)

	// CountClaims returns the number of claim rows for the video.
	CountClaims(ctx context.Context, videoID string) (int, error)

	// InsertClaim appends the dedup record for one payout. Fails with
	// ErrDuplicateClaim if a row for (UserID, VideoID) already exists;
	// the unique index enforces this even under concurrent inserts.
	InsertClaim(ctx context.Context, c *Claim) error

	// IncrementViews bumps the video's redemption counter.
	IncrementViews(ctx context.Context, videoID string) error

	// --- scores ---

	// ScoreForDay returns the score row for (userID, game, day), or
	// ErrScoreNotFound.
	ScoreForDay(ctx context.Context, userID, game, day string) (*Score, error)

	// InsertScore creates the first score row of the day.
	InsertScore(ctx context.Context, s *Score) error

	// UpdateScore sets the row's best score and increments its attempt
	// counter by one.
	UpdateScore(ctx context.Context, id string, bestScore int64) error

	// ScoresSince returns all score rows for a game with their players'
	// names, restricted to rows updated at or after since when non-nil.
	ScoresSince(ctx context.Context, game string, since *time.Time) ([]ScoreEntry, error)

	// ScoresByUser returns all of one user's score rows across games,
	// restricted to rows updated at or after since when non-nil.
	ScoresByUser(ctx context.Context, userID string, since *time.Time) ([]Score, error)

	// --- transactions ---

	// WithTx executes fn within one database transaction.
	// If fn returns an error, the transaction is rolled back and nothing
	// is persisted. Nested calls run in the enclosing transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
