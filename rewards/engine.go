/*
Package rewards implements the watch-to-earn payout engine.

PURPOSE:
  Grants a bounded, exactly-once-per-user reward for watching a video.
  Two invariants are enforced against concurrent claims:
  1. At most one payout per (user, video) pair, ever.
  2. At most ViewLimit payouts per video across all users.

CLAIM FLOW:
  1. Fetch the video (ErrItemNotFound)
  2. Cheap pre-checks outside the transaction: existing claim and view count.
     These fast-reject the common duplicate but are NOT authoritative - two
     concurrent requests can both pass them against stale reads.
  3. One atomic transaction re-runs both checks, inserts the claim row,
     bumps the view counter, and credits the reward. First commit wins.
  4. The unique index on (user_id, video_id) is the final backstop: even if
     two transactions interleave between the re-check and the insert, the
     second insert fails and its transaction rolls back.

STATE MACHINE:
  For a single (user, video) pair: UNCLAIMED -> CLAIMED, terminal. There is
  no unclaim or refund transition.

SEE ALSO:
  - ledger/: Credits the payout inside the claim transaction
  - storage/: Claim row and unique-index contract
*/
package rewards

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/detofa/points-engine/ledger"
	"github.com/detofa/points-engine/storage"
)

var (
	// ErrItemNotFound is returned for unknown video ids.
	ErrItemNotFound = errors.New("video not found")

	// ErrAlreadyClaimed is returned when the user has already been paid out
	// for this video.
	ErrAlreadyClaimed = errors.New("payout already received for this video")

	// ErrLimitReached is returned when the video's view limit is exhausted.
	ErrLimitReached = errors.New("view limit reached for this video")
)

// ClaimResult reports a successful payout.
type ClaimResult struct {
	PointsEarned   int64
	UpdatedBalance int64
}

// Engine grants video-watch rewards.
type Engine struct {
	store storage.Store
}

// NewEngine returns a rewards engine over the given store.
func NewEngine(store storage.Store) *Engine {
	return &Engine{store: store}
}

// Claim pays out the video's reward to the user, exactly once per
// (user, video) pair and at most ViewLimit times per video. A losing
// concurrent claimant observes ErrAlreadyClaimed or ErrLimitReached and
// never a partial credit.
func (e *Engine) Claim(ctx context.Context, userID, videoID string) (*ClaimResult, error) {
	video, err := e.store.VideoByID(ctx, videoID)
	if err != nil {
		if errors.Is(err, storage.ErrVideoNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	// Fast rejection on stale reads; the transaction below is authoritative.
	claimed, err := e.store.HasClaim(ctx, userID, videoID)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, ErrAlreadyClaimed
	}
	count, err := e.store.CountClaims(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if count >= video.ViewLimit {
		return nil, ErrLimitReached
	}

	var result ClaimResult
	err = e.store.WithTx(ctx, func(tx storage.Store) error {
		recount, err := tx.CountClaims(ctx, videoID)
		if err != nil {
			return err
		}
		if recount >= video.ViewLimit {
			return ErrLimitReached
		}

		dup, err := tx.HasClaim(ctx, userID, videoID)
		if err != nil {
			return err
		}
		if dup {
			return ErrAlreadyClaimed
		}

		claim := &storage.Claim{
			ID:        uuid.NewString(),
			UserID:    userID,
			VideoID:   videoID,
			ClaimedAt: time.Now().UTC(),
		}
		if err := tx.InsertClaim(ctx, claim); err != nil {
			if errors.Is(err, storage.ErrDuplicateClaim) {
				return ErrAlreadyClaimed
			}
			return err
		}
		if err := tx.IncrementViews(ctx, videoID); err != nil {
			return err
		}

		balance := int64(0)
		if video.RewardValue > 0 {
			balance, err = ledger.New(tx).Credit(ctx, userID, video.RewardValue)
			if err != nil {
				return err
			}
		} else {
			balance, err = tx.Balance(ctx, userID)
			if err != nil {
				return err
			}
		}

		result = ClaimResult{
			PointsEarned:   video.RewardValue,
			UpdatedBalance: balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Available lists videos the user can still earn from: not yet claimed by
// them and under their view limit.
func (e *Engine) Available(ctx context.Context, userID string) ([]storage.VideoStatus, error) {
	return e.store.AvailableVideos(ctx, userID)
}

// Status is a user's standing on one video.
type Status struct {
	Video        *storage.Video
	CurrentViews int
	Claimed      bool
	LimitReached bool
}

// CanWatch reports whether a claim by this user could still succeed.
func (s *Status) CanWatch() bool {
	return !s.Claimed && !s.LimitReached
}

// Status reports whether the user could still claim the video. It mutates
// nothing; the answer is advisory and Claim re-checks everything inside its
// transaction.
func (e *Engine) Status(ctx context.Context, userID, videoID string) (*Status, error) {
	var st Status
	err := e.store.WithTx(ctx, func(tx storage.Store) error {
		video, err := tx.VideoByID(ctx, videoID)
		if err != nil {
			return err
		}
		claimed, err := tx.HasClaim(ctx, userID, videoID)
		if err != nil {
			return err
		}
		count, err := tx.CountClaims(ctx, videoID)
		if err != nil {
			return err
		}
		st = Status{
			Video:        video,
			CurrentViews: count,
			Claimed:      claimed,
			LimitReached: count >= video.ViewLimit,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrVideoNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &st, nil
}
