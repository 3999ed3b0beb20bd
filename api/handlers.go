/*
handlers.go - HTTP handlers for the Detofa points engine

PURPOSE:
  Exposes registration/login, the transfer ledger, video reward payouts,
  and game scores over REST. Handlers parse and validate input, resolve
  the principal, delegate to the engines, and map errors to stable JSON
  responses.

ERROR HANDLING:
  Every engine error maps to a distinct status and message:
  - 400: validation failures (amount, score, fields), insufficient funds
  - 401: missing/invalid credential
  - 403: duplicate payout, exhausted view limit
  - 404: unknown recipient/video/user
  - 500: storage failures; the operation is guaranteed not-applied

  Success is never reported for a partially applied operation: the engines
  commit or roll back each operation as one transaction.

SEE ALSO:
  - dto.go: Wire shapes and JSON helpers
  - server.go: Routing and middleware stack
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/detofa/points-engine/auth"
	"github.com/detofa/points-engine/metrics"
	"github.com/detofa/points-engine/rewards"
	"github.com/detofa/points-engine/scores"
	"github.com/detofa/points-engine/storage"
	"github.com/detofa/points-engine/transfer"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     storage.Store
	Auth      *auth.Service
	Transfers *transfer.Engine
	Rewards   *rewards.Engine
	Scores    *scores.Engine
	Log       *logrus.Logger
}

// NewHandler wires a handler over the given store and engines.
func NewHandler(store storage.Store, authSvc *auth.Service, transfers *transfer.Engine, rewardsEng *rewards.Engine, scoresEng *scores.Engine, log *logrus.Logger) *Handler {
	return &Handler{
		Store:     store,
		Auth:      authSvc,
		Transfers: transfers,
		Rewards:   rewardsEng,
		Scores:    scoresEng,
		Log:       log,
	}
}

// =============================================================================
// USERS
// =============================================================================

// Register creates a new account.
// POST /api/users/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := h.Auth.Register(r.Context(), auth.RegisterParams{
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Password:      req.Password,
		ReferrerPhone: req.Parent,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    toUserDTO(user),
	})
}

// Login exchanges phone+password for a bearer token.
// POST /api/users/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	token, user, err := h.Auth.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message: "Login successful",
		Token:   token,
		Status:  user.Status,
	})
}

// Profile returns the authenticated user's account, balance included.
// GET /api/users/profile
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.UserByID(r.Context(), principalID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// RequestDeletion records a pending account-deletion request. The account
// row stays in place.
// DELETE /api/users/profile
func (h *Handler) RequestDeletion(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.RequestDeletion(r.Context(), principalID(r)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Data deletion request created.",
	})
}

// =============================================================================
// TRANSFERS
// =============================================================================

// Transfer moves points to the account registered under toUserPhone.
// POST /api/transactions/transfer
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ToUserPhone == "" || req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "Recipient phone number and amount are required", nil)
		return
	}

	rec, err := h.Transfers.Transfer(r.Context(), principalID(r), req.ToUserPhone, req.Amount, req.Note)
	if err != nil {
		metrics.TransfersRejected.WithLabelValues(rejectReason(err)).Inc()
		h.writeDomainError(w, err)
		return
	}

	metrics.TransfersCompleted.Inc()
	metrics.PointsTransferred.Add(float64(rec.Amount))
	metrics.FeesCollected.Add(float64(rec.Fee))

	writeJSON(w, http.StatusOK, TransferResponse{
		Message:     "Transfer completed successfully",
		Transaction: toTransactionDTO(rec, ""),
	})
}

// History returns one page of the principal's transfers, newest first.
// GET /api/transactions/history?page=1&limit=10
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.Transfers.History(r.Context(), principalID(r), page, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponse(result))
}

// =============================================================================
// VIDEOS / REWARDS
// =============================================================================

// ListVideos returns videos the principal can still earn from.
// GET /api/videos
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := h.Rewards.Available(r.Context(), principalID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]VideoDTO, len(videos))
	for i, v := range videos {
		dtos[i] = toVideoDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateVideo adds a rewardable video. Restricted to admin users.
// POST /api/videos
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.UserByID(r.Context(), principalID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if !strings.HasSuffix(user.Status, "ADMIN") {
		writeError(w, http.StatusForbidden, "Admin access required", nil)
		return
	}

	var req CreateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" || req.URL == "" || req.ViewLimit <= 0 || req.VideoPoint < 0 {
		writeError(w, http.StatusBadRequest, "title, url, positive viewLimit and non-negative videoPoint are required", nil)
		return
	}

	video := &storage.Video{
		ID:          uuid.NewString(),
		Title:       req.Title,
		URL:         req.URL,
		RewardValue: req.VideoPoint,
		ViewLimit:   req.ViewLimit,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.CreateVideo(r.Context(), video); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": video.ID})
}

// CheckVideo reports whether the principal could still claim the video,
// without granting anything. The 403 bodies mirror the payout rejections so
// clients can reuse their handling.
// POST /api/videos/check
func (h *Handler) CheckVideo(w http.ResponseWriter, r *http.Request) {
	var req PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.VideoID == "" {
		writeError(w, http.StatusBadRequest, "videoId is required", nil)
		return
	}

	status, err := h.Rewards.Status(r.Context(), principalID(r), req.VideoID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	switch {
	case status.Claimed:
		writeJSON(w, http.StatusForbidden, map[string]any{
			"canWatch":      false,
			"message":       "You have already viewed this video.",
			"alreadyViewed": true,
		})
	case status.LimitReached:
		writeJSON(w, http.StatusForbidden, map[string]any{
			"canWatch":         false,
			"message":          "View limit reached for this video.",
			"viewLimitReached": true,
			"currentViews":     status.CurrentViews,
			"maxViews":         status.Video.ViewLimit,
		})
	default:
		writeJSON(w, http.StatusOK, VideoCheckResponse{
			CanWatch: true,
			Message:  "You can watch the video.",
			VideoInfo: VideoCheckInfo{
				ID:           status.Video.ID,
				VideoPoint:   status.Video.RewardValue,
				ViewLimit:    status.Video.ViewLimit,
				CurrentViews: status.CurrentViews,
			},
		})
	}
}

// Payout grants the video's reward to the principal, once.
// POST /api/videos/payout
func (h *Handler) Payout(w http.ResponseWriter, r *http.Request) {
	var req PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.VideoID == "" {
		writeError(w, http.StatusBadRequest, "videoId is required", nil)
		return
	}

	result, err := h.Rewards.Claim(r.Context(), principalID(r), req.VideoID)
	if err != nil {
		switch {
		case errors.Is(err, rewards.ErrAlreadyClaimed):
			metrics.ClaimsRejected.WithLabelValues("already_claimed").Inc()
			writeJSON(w, http.StatusForbidden, map[string]any{
				"success":     false,
				"message":     "You have already received payout for this video.",
				"alreadyPaid": true,
			})
		case errors.Is(err, rewards.ErrLimitReached):
			metrics.ClaimsRejected.WithLabelValues("limit_reached").Inc()
			writeJSON(w, http.StatusForbidden, map[string]any{
				"success":          false,
				"message":          "View limit reached for this video.",
				"viewLimitReached": true,
			})
		default:
			h.writeDomainError(w, err)
		}
		return
	}

	metrics.ClaimsGranted.Inc()
	writeJSON(w, http.StatusOK, PayoutResponse{
		Success:      true,
		NewAccount:   result.UpdatedBalance,
		PointsEarned: result.PointsEarned,
		Message:      "Payout processed successfully",
	})
}

// =============================================================================
// SCORES
// =============================================================================

// SubmitScore records a score attempt for today's bucket.
// POST /api/scores
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Game == "" {
		writeError(w, http.StatusBadRequest, "Game and score are required", nil)
		return
	}

	row, err := h.Scores.Submit(r.Context(), principalID(r), req.Game, req.Score)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	metrics.ScoresSubmitted.Inc()
	writeJSON(w, http.StatusCreated, ScoreResponse{
		Message: "Score saved successfully",
		Data:    toScoreDTO(row),
	})
}

// TopScores returns the leaderboard for a game, optionally period-filtered.
// POST /api/scores/top
func (h *Handler) TopScores(w http.ResponseWriter, r *http.Request) {
	var req TopScoresRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.GameName == "" {
		writeError(w, http.StatusBadRequest, "gameName is required in the request body", nil)
		return
	}

	top, err := h.Scores.Top(r.Context(), principalID(r), req.GameName, scores.ParsePeriod(req.Filter))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if top == nil {
		top = []scores.TopEntry{}
	}
	writeJSON(w, http.StatusOK, top)
}

// HighestScores returns the principal's own best score per game, optionally
// period-filtered. Unlike the leaderboard there is nothing to anonymize.
// POST /api/scores/highestpergame
func (h *Handler) HighestScores(w http.ResponseWriter, r *http.Request) {
	var req HighestScoresRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	best, err := h.Scores.HighestPerGame(r.Context(), principalID(r), scores.ParsePeriod(req.Filter))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if best == nil {
		best = []scores.GameBest{}
	}
	writeJSON(w, http.StatusOK, best)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError maps engine errors to stable HTTP responses. Anything
// unmapped is an internal error; the operation is guaranteed not-applied.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var missing *auth.MissingFieldsError

	switch {
	case errors.As(err, &missing):
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": missing.Fields})
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrPhoneTaken),
		errors.Is(err, auth.ErrReferrerNotFound),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, transfer.ErrInvalidAmount),
		errors.Is(err, transfer.ErrSelfTransfer),
		errors.Is(err, storage.ErrInsufficientFunds),
		errors.Is(err, scores.ErrInvalidScore),
		errors.Is(err, scores.ErrInvalidGame):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, transfer.ErrRecipientNotFound),
		errors.Is(err, rewards.ErrItemNotFound),
		errors.Is(err, storage.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, rewards.ErrAlreadyClaimed),
		errors.Is(err, rewards.ErrLimitReached):
		writeError(w, http.StatusForbidden, err.Error(), nil)
	default:
		h.Log.WithError(err).Error("internal error")
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

// rejectReason labels a failed transfer for metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, transfer.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, transfer.ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, transfer.ErrRecipientNotFound):
		return "recipient_not_found"
	case errors.Is(err, storage.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "internal"
	}
}
