/*
Package transfer implements peer-to-peer point transfers.

PURPOSE:
  The Transfer Engine moves value between two distinct accounts, charges the
  sender a fee, and produces exactly one immutable transfer record - or has
  no effect at all.

FLOW:
  1. Validate amount against the policy minimum (no store round trip)
  2. Resolve the recipient by phone number
  3. Reject self-transfers
  4. Compute fee; totalDebit = amount + fee
  5. One atomic transaction: debit sender by totalDebit (balance re-checked
     by the guarded debit), credit recipient by amount, insert the record
  6. Commit, or roll back everything on any failure

FEE HANDLING:
  The fee is debited from the sender and retained by the system; it is not
  credited to any account. Conservation: sender -amount-fee, recipient
  +amount.

FAILURE SEMANTICS:
  ErrInvalidAmount, ErrRecipientNotFound, ErrSelfTransfer, and
  storage.ErrInsufficientFunds are recoverable, user-facing rejections.
  Any failure inside the transaction rolls back all mutations; a transfer
  is never partially applied.

SEE ALSO:
  - policy.go: Fee schedule and minimum amount
  - ledger/: Balance mutation used inside the transaction
*/
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/detofa/points-engine/ledger"
	"github.com/detofa/points-engine/storage"
)

var (
	// ErrInvalidAmount is returned for transfers below the policy minimum.
	ErrInvalidAmount = errors.New("amount must be greater than 99")

	// ErrRecipientNotFound is returned when the recipient phone number does
	// not resolve to an account.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrSelfTransfer is returned when sender and recipient are the same
	// account.
	ErrSelfTransfer = errors.New("cannot send funds to yourself")
)

// Record is a completed transfer as seen by one of its parties.
type Record struct {
	storage.Transfer

	// TotalAmount is Amount + Fee, what the sender actually paid.
	TotalAmount int64

	// Type is "sent" or "received", derived per requesting principal.
	Type string
}

// HistoryPage is one page of a principal's transfer history.
type HistoryPage struct {
	Records  []Record
	Page     int
	PageSize int
	Total    int
	Pages    int
}

// Engine executes transfers and serves transfer history.
type Engine struct {
	store  storage.Store
	policy Policy
}

// NewEngine returns a transfer engine over the given store.
func NewEngine(store storage.Store, policy Policy) *Engine {
	return &Engine{store: store, policy: policy}
}

// Transfer moves amount points from the sender to the account registered
// under toPhone, charging the sender the policy fee on top. On success it
// returns the created record with both parties' display info; on failure
// nothing is persisted.
func (e *Engine) Transfer(ctx context.Context, fromUserID, toPhone string, amount int64, note string) (*storage.Transfer, error) {
	if amount < e.policy.MinAmount {
		return nil, ErrInvalidAmount
	}

	recipient, err := e.store.UserByPhone(ctx, toPhone)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	if recipient.ID == fromUserID {
		return nil, ErrSelfTransfer
	}

	fee := e.policy.Fee(amount)
	totalDebit := amount + fee

	var rec *storage.Transfer
	err = e.store.WithTx(ctx, func(tx storage.Store) error {
		sender, err := tx.UserByID(ctx, fromUserID)
		if err != nil {
			return err
		}

		led := ledger.New(tx)
		if err := led.Debit(ctx, sender.ID, totalDebit); err != nil {
			return err
		}
		if _, err := led.Credit(ctx, recipient.ID, amount); err != nil {
			return err
		}

		rec = &storage.Transfer{
			ID:         uuid.NewString(),
			FromUserID: sender.ID,
			ToUserID:   recipient.ID,
			Amount:     amount,
			Fee:        fee,
			Note:       note,
			CreatedAt:  time.Now().UTC(),
			FromName:   sender.Name,
			FromPhone:  sender.Phone,
			ToName:     recipient.Name,
			ToPhone:    recipient.Phone,
		}
		return tx.InsertTransfer(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// History returns one page of the principal's transfers, newest first.
// Page numbers start at 1; pageSize defaults to 10 and is capped at 100.
func (e *Engine) History(ctx context.Context, userID string, page, pageSize int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	// Page and total come from one snapshot, so a transfer committing
	// between the two reads cannot make them disagree.
	var (
		transfers []storage.Transfer
		total     int
	)
	err := e.store.WithTx(ctx, func(tx storage.Store) error {
		var err error
		if transfers, err = tx.TransfersByUser(ctx, userID, pageSize, offset); err != nil {
			return err
		}
		total, err = tx.CountTransfersByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	records := make([]Record, len(transfers))
	for i, t := range transfers {
		kind := "received"
		if t.FromUserID == userID {
			kind = "sent"
		}
		records[i] = Record{
			Transfer:    t,
			TotalAmount: t.Amount + t.Fee,
			Type:        kind,
		}
	}

	pages := (total + pageSize - 1) / pageSize
	return &HistoryPage{
		Records:  records,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Pages:    pages,
	}, nil
}
