/*
Package storage defines the persistence contract for the Detofa points engine.

PURPOSE:
  This package contains the row types and the Store interface shared by every
  domain package (ledger, transfer, rewards, scores, auth). Implementations
  live elsewhere; the production one is store/sqlite.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: An account holder with a point balance
  - Transfer: An immutable record of a peer-to-peer funds movement
  - Video/Claim: A rewardable item and the dedup record for one payout
  - Score: One row per (user, game, day) holding the daily best

DESIGN PRINCIPLES:
  1. Balances are integers in the smallest unit (points). Never floats.
  2. Transfer and Claim rows are append-only facts. No update, no delete.
  3. User rows are never deleted; deletion requests are recorded separately.

SEE ALSO:
  - store.go: The Store interface and transactional contract
  - errors.go: Sentinel errors returned by implementations
*/
package storage

import "time"

// =============================================================================
// USERS / ACCOUNTS
// =============================================================================

// User is an account holder. Balance is the point balance in the smallest
// unit and must never go negative.
type User struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	PasswordHash  string
	ReferrerPhone string // optional, must reference an existing user's phone
	Status        string
	Balance       int64
	CreatedAt     time.Time
}

// StatusActive is the default status for newly registered users.
const StatusActive = "ACTIVE"

// =============================================================================
// TRANSFERS
// =============================================================================

// Transfer records one completed peer-to-peer funds movement.
// Created once inside the transfer transaction, never mutated.
type Transfer struct {
	ID         string
	FromUserID string
	ToUserID   string
	Amount     int64 // credited to the recipient
	Fee        int64 // debited from the sender on top of Amount, retained by the system
	Note       string
	CreatedAt  time.Time

	// Display info for both parties, populated on reads via join.
	FromName  string
	FromPhone string
	ToName    string
	ToPhone   string
}

// =============================================================================
// VIDEOS / REWARD CLAIMS
// =============================================================================

// Video is a rewardable item. Watching it to completion earns RewardValue
// points, at most once per user, and at most ViewLimit times in total.
type Video struct {
	ID          string
	Title       string
	URL         string
	RewardValue int64
	ViewLimit   int
	Views       int // derived counter, bumped on each successful claim
	CreatedAt   time.Time
}

// VideoStatus is a video plus its availability for a particular user.
type VideoStatus struct {
	Video
	CurrentViews   int
	RemainingViews int
}

// Claim is the dedup record for one reward payout. At most one row exists
// per (UserID, VideoID); the unique index is the storage-level backstop.
type Claim struct {
	ID        string
	UserID    string
	VideoID   string
	ClaimedAt time.Time
}

// =============================================================================
// SCORES
// =============================================================================

// Score holds one user's best result for one game on one calendar day.
// Day is the local-date bucket in YYYY-MM-DD form; a new day starts a new row.
type Score struct {
	ID        string
	UserID    string
	Game      string
	Day       string
	BestScore int64
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScoreEntry is a score row joined with the player's display name,
// used for leaderboard queries.
type ScoreEntry struct {
	UserID   string
	UserName string
	Score    int64
}
