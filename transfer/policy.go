/*
policy.go - Transfer policy constants and fee computation

PURPOSE:
  Centralizes the business rules of a peer-to-peer transfer: the minimum
  transferable amount and the fee schedule. Fees are computed with
  decimal.Decimal to avoid floating-point drift; the result is rounded up
  so the platform never under-collects by a fractional point.
*/
package transfer

import "github.com/shopspring/decimal"

// Policy holds the transfer business rules.
type Policy struct {
	// MinAmount is the smallest transferable amount, inclusive.
	// Transfers below it are rejected before any store round trip.
	MinAmount int64

	// FeeRate is the fraction of the amount charged to the sender on top
	// of the amount itself.
	FeeRate decimal.Decimal
}

// DefaultPolicy returns the production policy: transfers start at 100
// points and carry a 3% fee.
func DefaultPolicy() Policy {
	return Policy{
		MinAmount: 100,
		FeeRate:   decimal.NewFromFloat(0.03),
	}
}

// Fee returns ceil(amount * FeeRate) in points.
func (p Policy) Fee(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(p.FeeRate).Ceil().IntPart()
}
