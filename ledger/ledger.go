/*
Package ledger owns balance mutation for the points engine.

PURPOSE:
  The Account Ledger is the only component allowed to change a user's point
  balance. It validates amounts and delegates the guarded mutation to the
  storage layer, which applies the check and the write in one statement.

CRITICAL INVARIANTS:
  1. Balance is never negative. Debit fails with ErrInsufficientFunds rather
     than apply a partial or overdrawing write.
  2. Amounts are positive integers. Zero and negative amounts are rejected
     before any store round trip.
  3. No audit records here. Callers that need a trail (transfer records,
     reward claims) create their own rows in the same transaction.

CONCURRENCY:
  The check-then-act gap is closed at the storage layer: the debit's balance
  precondition is evaluated inside the same statement that applies it, so
  two concurrent debits against the same account cannot both pass a stale
  check. Callers composing a debit with other writes wrap the whole unit in
  storage.Store.WithTx and construct the Ledger over the transaction-scoped
  store.

USAGE:
  err := store.WithTx(ctx, func(tx storage.Store) error {
      led := ledger.New(tx)
      if err := led.Debit(ctx, senderID, total); err != nil {
          return err
      }
      _, err := led.Credit(ctx, recipientID, amount)
      return err
  })
*/
package ledger

import (
	"context"
	"errors"

	"github.com/detofa/points-engine/storage"
)

// ErrInvalidAmount is returned for zero or negative credit/debit amounts.
var ErrInvalidAmount = errors.New("amount must be a positive integer")

// Ledger mutates balances through a storage.Store. Construct one over a
// transaction-scoped store to compose balance changes with other writes.
type Ledger struct {
	store storage.Store
}

// New returns a Ledger over the given store.
func New(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// Credit adds amount points to the account and returns the new balance.
// Fails with ErrInvalidAmount for non-positive amounts and
// storage.ErrUserNotFound for unknown accounts.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return l.store.Credit(ctx, userID, amount)
}

// Debit subtracts amount points from the account. Fails with
// ErrInvalidAmount for non-positive amounts, storage.ErrUserNotFound for
// unknown accounts, and storage.ErrInsufficientFunds when the balance is
// short; in every failure case the balance is untouched.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return l.store.Debit(ctx, userID, amount)
}

// Balance returns the current point balance, or storage.ErrUserNotFound.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	return l.store.Balance(ctx, userID)
}
