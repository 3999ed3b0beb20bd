/*
dto.go - Request and response data structures

PURPOSE:
  JSON shapes for the HTTP API, kept separate from domain types so wire
  compatibility does not constrain the engine packages. Field names follow
  the client contract (camelCase, "parent" for the referrer phone).
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/detofa/points-engine/storage"
	"github.com/detofa/points-engine/transfer"
)

// =============================================================================
// REQUESTS
// =============================================================================

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Parent   string `json:"parent,omitempty"`
}

type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type TransferRequest struct {
	ToUserPhone string `json:"toUserPhone"`
	Amount      int64  `json:"amount"`
	Note        string `json:"note,omitempty"`
}

type PayoutRequest struct {
	VideoID string `json:"videoId"`
}

type CreateVideoRequest struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	VideoPoint int64  `json:"videoPoint"`
	ViewLimit  int    `json:"viewLimit"`
}

type ScoreRequest struct {
	Game  string `json:"game"`
	Score int64  `json:"score"`
}

type TopScoresRequest struct {
	GameName string `json:"gameName"`
	Filter   string `json:"filter,omitempty"`
}

type HighestScoresRequest struct {
	Filter string `json:"filter,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type UserDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Status    string `json:"status"`
	Account   int64  `json:"account"`
	CreatedAt string `json:"createdAt"`
}

type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	Status  string `json:"status"`
}

type PartyDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type TransactionDTO struct {
	ID             string   `json:"id"`
	Amount         int64    `json:"amount"`
	TransactionFee int64    `json:"transactionFee"`
	TotalAmount    int64    `json:"totalAmount"`
	FromUser       PartyDTO `json:"fromUser"`
	ToUser         PartyDTO `json:"toUser"`
	Note           string   `json:"note,omitempty"`
	Type           string   `json:"type,omitempty"`
	CreatedAt      string   `json:"createdAt"`
}

type TransferResponse struct {
	Message     string         `json:"message"`
	Transaction TransactionDTO `json:"transaction"`
}

type PaginationDTO struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type HistoryResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
	Pagination   PaginationDTO    `json:"pagination"`
}

type VideoDTO struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	VideoPoint     int64  `json:"videoPoint"`
	ViewLimit      int    `json:"viewLimit"`
	CurrentViews   int    `json:"currentViews"`
	RemainingViews int    `json:"remainingViews"`
	CanWatch       bool   `json:"canWatch"`
}

type VideoCheckInfo struct {
	ID           string `json:"id"`
	VideoPoint   int64  `json:"videoPoint"`
	ViewLimit    int    `json:"viewLimit"`
	CurrentViews int    `json:"currentViews"`
}

type VideoCheckResponse struct {
	CanWatch  bool           `json:"canWatch"`
	Message   string         `json:"message"`
	VideoInfo VideoCheckInfo `json:"videoInfo"`
}

type PayoutResponse struct {
	Success      bool   `json:"success"`
	NewAccount   int64  `json:"newAccount"`
	PointsEarned int64  `json:"pointsEarned"`
	Message      string `json:"message"`
}

type ScoreDTO struct {
	ID        string `json:"id"`
	Game      string `json:"game"`
	Score     int64  `json:"score"`
	Times     int    `json:"times"`
	Day       string `json:"day"`
	UpdatedAt string `json:"updatedAt"`
}

type ScoreResponse struct {
	Message string   `json:"message"`
	Data    ScoreDTO `json:"data"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toUserDTO(u *storage.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Status:    u.Status,
		Account:   u.Balance,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(t *storage.Transfer, kind string) TransactionDTO {
	return TransactionDTO{
		ID:             t.ID,
		Amount:         t.Amount,
		TransactionFee: t.Fee,
		TotalAmount:    t.Amount + t.Fee,
		FromUser:       PartyDTO{ID: t.FromUserID, Name: t.FromName, Phone: t.FromPhone},
		ToUser:         PartyDTO{ID: t.ToUserID, Name: t.ToName, Phone: t.ToPhone},
		Note:           t.Note,
		Type:           kind,
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
	}
}

func toHistoryResponse(page *transfer.HistoryPage) HistoryResponse {
	dtos := make([]TransactionDTO, len(page.Records))
	for i := range page.Records {
		dtos[i] = toTransactionDTO(&page.Records[i].Transfer, page.Records[i].Type)
	}
	return HistoryResponse{
		Transactions: dtos,
		Pagination: PaginationDTO{
			Page:  page.Page,
			Limit: page.PageSize,
			Total: page.Total,
			Pages: page.Pages,
		},
	}
}

func toVideoDTO(v storage.VideoStatus) VideoDTO {
	return VideoDTO{
		ID:             v.ID,
		Title:          v.Title,
		URL:            v.URL,
		VideoPoint:     v.RewardValue,
		ViewLimit:      v.ViewLimit,
		CurrentViews:   v.CurrentViews,
		RemainingViews: v.RemainingViews,
		CanWatch:       true,
	}
}

func toScoreDTO(s *storage.Score) ScoreDTO {
	return ScoreDTO{
		ID:        s.ID,
		Game:      s.Game,
		Score:     s.BestScore,
		Times:     s.Attempts,
		Day:       s.Day,
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// JSON HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
