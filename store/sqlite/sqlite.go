/*
Package sqlite provides the SQLite-backed implementation of storage.Store.

PURPOSE:
  Implements persistence for accounts, transfers, reward claims, and scores.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INVARIANTS ENFORCED AT THE SCHEMA LEVEL:
  - users.balance has a CHECK (balance >= 0): no code path can persist a
    negative balance even if application logic has a gap.
  - users.phone is unique: one account per phone number.
  - video_views has a unique index on (user_id, video_id): the final
    backstop against duplicate-payout races.
  - scores has a unique index on (user_id, game, day): one row per day
    bucket.

APPEND-ONLY TABLES:
  transfers and video_views have no UPDATE or DELETE statements anywhere in
  this package. deletion_requests records account-deletion requests without
  touching the users row.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's single-writer
  model. WithTx holds the write lock for the whole transaction, so reads
  re-run inside a transaction are serialized against concurrent writers.
  With PostgreSQL, database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency
  and crash recovery. Use ":memory:" for tests.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - storage/store.go: Interface definition and transactional contract
  - storage/errors.go: Sentinel errors returned here
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/detofa/points-engine/storage"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ storage.Store = (*Store)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx so the query helpers can
// run inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer anyway, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		referrer_phone TEXT,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_phone ON users(phone);

	-- Immutable transfer records (append-only)
	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		from_user_id TEXT NOT NULL REFERENCES users(id),
		to_user_id TEXT NOT NULL REFERENCES users(id),
		amount INTEGER NOT NULL,
		fee INTEGER NOT NULL,
		note TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_from ON transfers(from_user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		reward_value INTEGER NOT NULL DEFAULT 0,
		view_limit INTEGER NOT NULL,
		views_number INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Payout dedup records (append-only)
	CREATE TABLE IF NOT EXISTS video_views (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		video_id TEXT NOT NULL REFERENCES videos(id),
		claimed_at TEXT NOT NULL
	);

	-- CRITICAL: one payout per (user, video), enforced at the storage layer
	CREATE UNIQUE INDEX IF NOT EXISTS idx_video_views_user_video
		ON video_views(user_id, video_id);
	CREATE INDEX IF NOT EXISTS idx_video_views_video ON video_views(video_id);

	CREATE TABLE IF NOT EXISTS scores (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		game TEXT NOT NULL,
		day TEXT NOT NULL,
		best_score INTEGER NOT NULL CHECK (best_score >= 0),
		attempts INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One row per (user, game, calendar day)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_scores_user_game_day
		ON scores(user_id, game, day);
	CREATE INDEX IF NOT EXISTS idx_scores_game_updated ON scores(game, updated_at);

	CREATE TABLE IF NOT EXISTS deletion_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USERS / ACCOUNTS
// =============================================================================

// CreateUser inserts a new account row.
func (s *Store) CreateUser(ctx context.Context, u *storage.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createUser(ctx, s.db, u)
}

func createUser(ctx context.Context, q dbtx, u *storage.User) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, password_hash, referrer_phone, status, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Phone, u.PasswordHash,
		nullString(u.ReferrerPhone), u.Status, u.Balance,
		u.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrDuplicatePhone
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UserByID returns the account row, or storage.ErrUserNotFound.
func (s *Store) UserByID(ctx context.Context, id string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return userBy(ctx, s.db, "id", id)
}

// UserByPhone resolves a phone number, or storage.ErrUserNotFound.
func (s *Store) UserByPhone(ctx context.Context, phone string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return userBy(ctx, s.db, "phone", phone)
}

func userBy(ctx context.Context, q dbtx, column, value string) (*storage.User, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, email, phone, password_hash, referrer_phone, status, balance, created_at
		FROM users WHERE `+column+` = ?`, value)

	var (
		u         storage.User
		referrer  sql.NullString
		createdAt string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash,
		&referrer, &u.Status, &u.Balance, &createdAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.ReferrerPhone = referrer.String
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Balance returns the current point balance.
func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return balance(ctx, s.db, userID)
}

func balance(ctx context.Context, q dbtx, userID string) (int64, error) {
	var b int64
	err := q.QueryRowContext(ctx, "SELECT balance FROM users WHERE id = ?", userID).Scan(&b)
	if err == sql.ErrNoRows {
		return 0, storage.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return b, nil
}

// Credit adds amount to the balance and returns the new balance.
func (s *Store) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return credit(ctx, s.db, userID, amount)
}

func credit(ctx context.Context, q dbtx, userID string, amount int64) (int64, error) {
	res, err := q.ExecContext(ctx,
		"UPDATE users SET balance = balance + ? WHERE id = ?", amount, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to credit account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, storage.ErrUserNotFound
	}
	return balance(ctx, q, userID)
}

// Debit subtracts amount from the balance. The precondition balance >= amount
// is evaluated in the same statement that applies the decrement, so two
// concurrent debits cannot both pass a stale check.
func (s *Store) Debit(ctx context.Context, userID string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return debit(ctx, s.db, userID, amount)
}

func debit(ctx context.Context, q dbtx, userID string, amount int64) error {
	res, err := q.ExecContext(ctx,
		"UPDATE users SET balance = balance - ? WHERE id = ? AND balance >= ?",
		amount, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Nothing was updated: either the account is missing or the balance is short.
	available, err := balance(ctx, q, userID)
	if err != nil {
		return err
	}
	return &storage.InsufficientFundsError{
		UserID:    userID,
		Available: available,
		Requested: amount,
	}
}

// CreateDeletionRequest records a pending account-deletion request.
func (s *Store) CreateDeletionRequest(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createDeletionRequest(ctx, s.db, userID)
}

func createDeletionRequest(ctx context.Context, q dbtx, userID string) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO deletion_requests (id, user_id, created_at) VALUES (?, ?, ?)",
		uuid.NewString(), userID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create deletion request: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSFERS (append-only)
// =============================================================================

// InsertTransfer appends one immutable transfer record.
func (s *Store) InsertTransfer(ctx context.Context, t *storage.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTransfer(ctx, s.db, t)
}

func insertTransfer(ctx context.Context, q dbtx, t *storage.Transfer) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO transfers (id, from_user_id, to_user_id, amount, fee, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FromUserID, t.ToUserID, t.Amount, t.Fee,
		nullString(t.Note), t.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

// TransfersByUser returns transfers involving the user, newest first.
func (s *Store) TransfersByUser(ctx context.Context, userID string, limit, offset int) ([]storage.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transfersByUser(ctx, s.db, userID, limit, offset)
}

func transfersByUser(ctx context.Context, q dbtx, userID string, limit, offset int) ([]storage.Transfer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT t.id, t.from_user_id, t.to_user_id, t.amount, t.fee, t.note, t.created_at,
		       fu.name, fu.phone, tu.name, tu.phone
		FROM transfers t
		JOIN users fu ON fu.id = t.from_user_id
		JOIN users tu ON tu.id = t.to_user_id
		WHERE t.from_user_id = ? OR t.to_user_id = ?
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ? OFFSET ?`,
		userID, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []storage.Transfer
	for rows.Next() {
		var (
			t         storage.Transfer
			note      sql.NullString
			createdAt string
		)
		err := rows.Scan(&t.ID, &t.FromUserID, &t.ToUserID, &t.Amount, &t.Fee,
			&note, &createdAt, &t.FromName, &t.FromPhone, &t.ToName, &t.ToPhone)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		t.Note = note.String
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// CountTransfersByUser returns the total transfer count for pagination.
func (s *Store) CountTransfersByUser(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countTransfersByUser(ctx, s.db, userID)
}

func countTransfersByUser(ctx context.Context, q dbtx, userID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transfers WHERE from_user_id = ? OR to_user_id = ?",
		userID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return count, nil
}

// =============================================================================
// VIDEOS / REWARD CLAIMS
// =============================================================================

// CreateVideo inserts a rewardable video.
func (s *Store) CreateVideo(ctx context.Context, v *storage.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createVideo(ctx, s.db, v)
}

func createVideo(ctx context.Context, q dbtx, v *storage.Video) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO videos (id, title, url, reward_value, view_limit, views_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Title, v.URL, v.RewardValue, v.ViewLimit, v.Views,
		v.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}
	return nil
}

// VideoByID returns the video row, or storage.ErrVideoNotFound.
func (s *Store) VideoByID(ctx context.Context, id string) (*storage.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return videoByID(ctx, s.db, id)
}

func videoByID(ctx context.Context, q dbtx, id string) (*storage.Video, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, title, url, reward_value, view_limit, views_number, created_at
		FROM videos WHERE id = ?`, id)

	var (
		v         storage.Video
		createdAt string
	)
	err := row.Scan(&v.ID, &v.Title, &v.URL, &v.RewardValue, &v.ViewLimit, &v.Views, &createdAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan video: %w", err)
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// AvailableVideos lists videos the user has not claimed and that are still
// under their view limit.
func (s *Store) AvailableVideos(ctx context.Context, userID string) ([]storage.VideoStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return availableVideos(ctx, s.db, userID)
}

func availableVideos(ctx context.Context, q dbtx, userID string) ([]storage.VideoStatus, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT v.id, v.title, v.url, v.reward_value, v.view_limit, v.views_number, v.created_at,
		       (SELECT COUNT(*) FROM video_views vv WHERE vv.video_id = v.id) AS current_views
		FROM videos v
		WHERE NOT EXISTS (
			SELECT 1 FROM video_views vv WHERE vv.video_id = v.id AND vv.user_id = ?
		)
		AND (SELECT COUNT(*) FROM video_views vv WHERE vv.video_id = v.id) < v.view_limit
		ORDER BY v.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query available videos: %w", err)
	}
	defer rows.Close()

	var out []storage.VideoStatus
	for rows.Next() {
		var (
			vs        storage.VideoStatus
			createdAt string
		)
		err := rows.Scan(&vs.ID, &vs.Title, &vs.URL, &vs.RewardValue, &vs.ViewLimit,
			&vs.Views, &createdAt, &vs.CurrentViews)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		if vs.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		vs.RemainingViews = vs.ViewLimit - vs.CurrentViews
		out = append(out, vs)
	}
	return out, rows.Err()
}

// HasClaim reports whether a claim row exists for (userID, videoID).
func (s *Store) HasClaim(ctx context.Context, userID, videoID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasClaim(ctx, s.db, userID, videoID)
}

func hasClaim(ctx context.Context, q dbtx, userID, videoID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM video_views WHERE user_id = ? AND video_id = ?",
		userID, videoID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check claim: %w", err)
	}
	return count > 0, nil
}

// CountClaims returns the number of claim rows for the video.
func (s *Store) CountClaims(ctx context.Context, videoID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countClaims(ctx, s.db, videoID)
}

func countClaims(ctx context.Context, q dbtx, videoID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM video_views WHERE video_id = ?", videoID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count claims: %w", err)
	}
	return count, nil
}

// InsertClaim appends the payout dedup record. The unique index on
// (user_id, video_id) turns duplicate inserts into storage.ErrDuplicateClaim.
func (s *Store) InsertClaim(ctx context.Context, c *storage.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertClaim(ctx, s.db, c)
}

func insertClaim(ctx context.Context, q dbtx, c *storage.Claim) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO video_views (id, user_id, video_id, claimed_at) VALUES (?, ?, ?, ?)",
		c.ID, c.UserID, c.VideoID, c.ClaimedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrDuplicateClaim
		}
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// IncrementViews bumps the video's redemption counter.
func (s *Store) IncrementViews(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return incrementViews(ctx, s.db, videoID)
}

func incrementViews(ctx context.Context, q dbtx, videoID string) error {
	res, err := q.ExecContext(ctx,
		"UPDATE videos SET views_number = views_number + 1 WHERE id = ?", videoID)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrVideoNotFound
	}
	return nil
}

// =============================================================================
// SCORES
// =============================================================================

// ScoreForDay returns the score row for (userID, game, day).
func (s *Store) ScoreForDay(ctx context.Context, userID, game, day string) (*storage.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scoreForDay(ctx, s.db, userID, game, day)
}

func scoreForDay(ctx context.Context, q dbtx, userID, game, day string) (*storage.Score, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, game, day, best_score, attempts, created_at, updated_at
		FROM scores WHERE user_id = ? AND game = ? AND day = ?`,
		userID, game, day)

	var (
		sc                   storage.Score
		createdAt, updatedAt string
	)
	err := row.Scan(&sc.ID, &sc.UserID, &sc.Game, &sc.Day, &sc.BestScore,
		&sc.Attempts, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrScoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan score: %w", err)
	}
	if sc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sc.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &sc, nil
}

// InsertScore creates the first score row of the day.
func (s *Store) InsertScore(ctx context.Context, sc *storage.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertScore(ctx, s.db, sc)
}

func insertScore(ctx context.Context, q dbtx, sc *storage.Score) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO scores (id, user_id, game, day, best_score, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.UserID, sc.Game, sc.Day, sc.BestScore, sc.Attempts,
		sc.CreatedAt.UTC().Format(time.RFC3339), sc.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert score: %w", err)
	}
	return nil
}

// UpdateScore sets the row's best score and increments its attempt counter.
func (s *Store) UpdateScore(ctx context.Context, id string, bestScore int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateScore(ctx, s.db, id, bestScore)
}

func updateScore(ctx context.Context, q dbtx, id string, bestScore int64) error {
	res, err := q.ExecContext(ctx, `
		UPDATE scores SET best_score = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ?`,
		bestScore, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrScoreNotFound
	}
	return nil
}

// ScoresSince returns score rows for a game joined with player names,
// restricted to rows updated at or after since when non-nil.
func (s *Store) ScoresSince(ctx context.Context, game string, since *time.Time) ([]storage.ScoreEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scoresSince(ctx, s.db, game, since)
}

func scoresSince(ctx context.Context, q dbtx, game string, since *time.Time) ([]storage.ScoreEntry, error) {
	query := `
		SELECT s.user_id, u.name, s.best_score
		FROM scores s
		JOIN users u ON u.id = s.user_id
		WHERE s.game = ?`
	args := []any{game}
	if since != nil {
		query += " AND s.updated_at >= ?"
		args = append(args, since.UTC().Format(time.RFC3339))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var entries []storage.ScoreEntry
	for rows.Next() {
		var e storage.ScoreEntry
		if err := rows.Scan(&e.UserID, &e.UserName, &e.Score); err != nil {
			return nil, fmt.Errorf("failed to scan score entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ScoresByUser returns one user's score rows across games, restricted to
// rows updated at or after since when non-nil.
func (s *Store) ScoresByUser(ctx context.Context, userID string, since *time.Time) ([]storage.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scoresByUser(ctx, s.db, userID, since)
}

func scoresByUser(ctx context.Context, q dbtx, userID string, since *time.Time) ([]storage.Score, error) {
	query := `
		SELECT id, user_id, game, day, best_score, attempts, created_at, updated_at
		FROM scores WHERE user_id = ?`
	args := []any{userID}
	if since != nil {
		query += " AND updated_at >= ?"
		args = append(args, since.UTC().Format(time.RFC3339))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user scores: %w", err)
	}
	defer rows.Close()

	var out []storage.Score
	for rows.Next() {
		var (
			sc                   storage.Score
			createdAt, updatedAt string
		)
		err := rows.Scan(&sc.ID, &sc.UserID, &sc.Game, &sc.Day, &sc.BestScore,
			&sc.Attempts, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score: %w", err)
		}
		if sc.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if sc.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The write lock is held
// for the duration, so every read inside fn is serialized against
// concurrent writers; re-checks inside fn are authoritative.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the transaction-scoped view of the store. Its methods take no
// locks: WithTx already holds the write lock.
type txStore struct {
	q *sql.Tx
}

var _ storage.Store = (*txStore)(nil)

func (t *txStore) CreateUser(ctx context.Context, u *storage.User) error {
	return createUser(ctx, t.q, u)
}

func (t *txStore) UserByID(ctx context.Context, id string) (*storage.User, error) {
	return userBy(ctx, t.q, "id", id)
}

func (t *txStore) UserByPhone(ctx context.Context, phone string) (*storage.User, error) {
	return userBy(ctx, t.q, "phone", phone)
}

func (t *txStore) Balance(ctx context.Context, userID string) (int64, error) {
	return balance(ctx, t.q, userID)
}

func (t *txStore) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	return credit(ctx, t.q, userID, amount)
}

func (t *txStore) Debit(ctx context.Context, userID string, amount int64) error {
	return debit(ctx, t.q, userID, amount)
}

func (t *txStore) CreateDeletionRequest(ctx context.Context, userID string) error {
	return createDeletionRequest(ctx, t.q, userID)
}

func (t *txStore) InsertTransfer(ctx context.Context, tr *storage.Transfer) error {
	return insertTransfer(ctx, t.q, tr)
}

func (t *txStore) TransfersByUser(ctx context.Context, userID string, limit, offset int) ([]storage.Transfer, error) {
	return transfersByUser(ctx, t.q, userID, limit, offset)
}

func (t *txStore) CountTransfersByUser(ctx context.Context, userID string) (int, error) {
	return countTransfersByUser(ctx, t.q, userID)
}

func (t *txStore) CreateVideo(ctx context.Context, v *storage.Video) error {
	return createVideo(ctx, t.q, v)
}

func (t *txStore) VideoByID(ctx context.Context, id string) (*storage.Video, error) {
	return videoByID(ctx, t.q, id)
}

func (t *txStore) AvailableVideos(ctx context.Context, userID string) ([]storage.VideoStatus, error) {
	return availableVideos(ctx, t.q, userID)
}

func (t *txStore) HasClaim(ctx context.Context, userID, videoID string) (bool, error) {
	return hasClaim(ctx, t.q, userID, videoID)
}

func (t *txStore) CountClaims(ctx context.Context, videoID string) (int, error) {
	return countClaims(ctx, t.q, videoID)
}

func (t *txStore) InsertClaim(ctx context.Context, c *storage.Claim) error {
	return insertClaim(ctx, t.q, c)
}

func (t *txStore) IncrementViews(ctx context.Context, videoID string) error {
	return incrementViews(ctx, t.q, videoID)
}

func (t *txStore) ScoreForDay(ctx context.Context, userID, game, day string) (*storage.Score, error) {
	return scoreForDay(ctx, t.q, userID, game, day)
}

func (t *txStore) InsertScore(ctx context.Context, sc *storage.Score) error {
	return insertScore(ctx, t.q, sc)
}

func (t *txStore) UpdateScore(ctx context.Context, id string, bestScore int64) error {
	return updateScore(ctx, t.q, id, bestScore)
}

func (t *txStore) ScoresSince(ctx context.Context, game string, since *time.Time) ([]storage.ScoreEntry, error) {
	return scoresSince(ctx, t.q, game, since)
}

func (t *txStore) ScoresByUser(ctx context.Context, userID string, since *time.Time) ([]storage.Score, error) {
	return scoresByUser(ctx, t.q, userID, since)
}

// WithTx on a transaction-scoped store runs fn in the enclosing transaction.
func (t *txStore) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	return fn(t)
}

// =============================================================================
// Helper functions
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
