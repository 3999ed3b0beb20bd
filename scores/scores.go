/*
Package scores implements daily game score tracking and leaderboards.

PURPOSE:
  One row per (user, game, calendar day) holds the day's best score and an
  attempt counter. The best score is monotonically non-decreasing within the
  day; a new day starts a fresh row. The leaderboard reduces those daily
  rows to one best score per player.

DAY BUCKETS:
  The bucket boundary is local midnight of the server clock. The clock is
  injectable so rollover behavior is testable.

ANONYMIZATION:
  Leaderboard entries show the requesting player's full display name; every
  other player is shown as the first characters of their opaque id.
*/
package scores

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/detofa/points-engine/storage"
)

var (
	// ErrInvalidScore is returned for negative scores.
	ErrInvalidScore = errors.New("score must be a non-negative integer")

	// ErrInvalidGame is returned for games outside the known set.
	ErrInvalidGame = errors.New("invalid game type")
)

// Known games.
const (
	GameSnake      = "SNAKE"
	GameTetris     = "TETRIS"
	GameFlappyBird = "FLAPPYBIRD"
)

var validGames = map[string]bool{
	GameSnake:      true,
	GameTetris:     true,
	GameFlappyBird: true,
}

// Period filters the leaderboard window. The zero value means all-time.
type Period string

const (
	PeriodDay   Period = "Day"
	PeriodWeek  Period = "Week"
	PeriodMonth Period = "Month"
	PeriodYear  Period = "Year"
)

// ParsePeriod maps a client filter string to a Period, case-insensitively.
// Unknown or empty filters mean all-time.
func ParsePeriod(filter string) Period {
	switch strings.ToLower(filter) {
	case "day":
		return PeriodDay
	case "week":
		return PeriodWeek
	case "month":
		return PeriodMonth
	case "year":
		return PeriodYear
	default:
		return ""
	}
}

// TopEntry is one leaderboard row.
type TopEntry struct {
	Player string `json:"user"`
	Score  int64  `json:"score"`
}

// GameBest is one row of a player's personal best-per-game summary.
type GameBest struct {
	Game  string `json:"game"`
	Score int64  `json:"score"`
}

// anonymizedIDLen is how much of another player's id the leaderboard shows.
const anonymizedIDLen = 5

// topSize caps the leaderboard length.
const topSize = 10

// Engine tracks scores and serves leaderboards.
type Engine struct {
	store storage.Store
	now   func() time.Time
}

// NewEngine returns a scores engine over the given store, using the system
// clock for day buckets.
func NewEngine(store storage.Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// NewEngineWithClock is NewEngine with an injected clock.
func NewEngineWithClock(store storage.Store, now func() time.Time) *Engine {
	return &Engine{store: store, now: now}
}

// Submit records a score attempt. The first submission of the day creates
// the row with attempts=1; later submissions keep the day's maximum and
// increment attempts. Returns the row as it stands after the submission.
func (e *Engine) Submit(ctx context.Context, userID, game string, score int64) (*storage.Score, error) {
	if !validGames[game] {
		return nil, ErrInvalidGame
	}
	if score < 0 {
		return nil, ErrInvalidScore
	}
	if _, err := e.store.UserByID(ctx, userID); err != nil {
		return nil, err
	}

	day := e.now().Format("2006-01-02")

	var row *storage.Score
	err := e.store.WithTx(ctx, func(tx storage.Store) error {
		existing, err := tx.ScoreForDay(ctx, userID, game, day)
		if errors.Is(err, storage.ErrScoreNotFound) {
			now := e.now().UTC()
			row = &storage.Score{
				ID:        uuid.NewString(),
				UserID:    userID,
				Game:      game,
				Day:       day,
				BestScore: score,
				Attempts:  1,
				CreatedAt: now,
				UpdatedAt: now,
			}
			return tx.InsertScore(ctx, row)
		}
		if err != nil {
			return err
		}

		best := existing.BestScore
		if score > best {
			best = score
		}
		if err := tx.UpdateScore(ctx, existing.ID, best); err != nil {
			return err
		}
		existing.BestScore = best
		existing.Attempts++
		row = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// Top returns up to ten leaderboard entries for the game, best score per
// player, descending, optionally restricted to the current period. Entries
// other than the requester's are anonymized.
func (e *Engine) Top(ctx context.Context, requesterID, game string, period Period) ([]TopEntry, error) {
	if !validGames[game] {
		return nil, ErrInvalidGame
	}

	since := periodStart(e.now(), period)
	entries, err := e.store.ScoresSince(ctx, game, since)
	if err != nil {
		return nil, err
	}

	// Daily rows collapse to each player's overall best.
	best := make(map[string]storage.ScoreEntry)
	for _, entry := range entries {
		if cur, ok := best[entry.UserID]; !ok || entry.Score > cur.Score {
			best[entry.UserID] = entry
		}
	}

	ranked := make([]storage.ScoreEntry, 0, len(best))
	for _, entry := range best {
		ranked = append(ranked, entry)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > topSize {
		ranked = ranked[:topSize]
	}

	top := make([]TopEntry, len(ranked))
	for i, entry := range ranked {
		player := entry.UserName
		if entry.UserID != requesterID {
			player = anonymize(entry.UserID)
		}
		top[i] = TopEntry{Player: player, Score: entry.Score}
	}
	return top, nil
}

// HighestPerGame returns the requester's own best score for each game they
// have played, optionally restricted to the current period. No
// anonymization applies: every row is the requester's.
func (e *Engine) HighestPerGame(ctx context.Context, userID string, period Period) ([]GameBest, error) {
	since := periodStart(e.now(), period)
	rows, err := e.store.ScoresByUser(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	best := make(map[string]int64)
	for _, row := range rows {
		if cur, ok := best[row.Game]; !ok || row.BestScore > cur {
			best[row.Game] = row.BestScore
		}
	}

	out := make([]GameBest, 0, len(best))
	for game, score := range best {
		out = append(out, GameBest{Game: game, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Game < out[j].Game
	})
	return out, nil
}

func anonymize(id string) string {
	if len(id) <= anonymizedIDLen {
		return id
	}
	return id[:anonymizedIDLen]
}

// periodStart returns the inclusive lower bound for the period, or nil for
// all-time. Weeks start on Monday.
func periodStart(now time.Time, period Period) *time.Time {
	var start time.Time
	switch period {
	case PeriodDay:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case PeriodWeek:
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		monday := now.AddDate(0, 0, -daysSinceMonday)
		start = time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, now.Location())
	case PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	case PeriodYear:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	default:
		return nil
	}
	return &start
}
