// Package order defines the resting-order type shared by the order book and
// every exchange adapter.
package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Side identifies which side of the book an order rests on.
type Side uint8

const (
	// Buy is the bid side.
	Buy Side = iota
	// Sell is the ask side.
	Sell
)

// String implements fmt.Stringer.
func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

var (
	// ErrInvalidSide is returned when a Side value is neither Buy nor Sell.
	ErrInvalidSide = errors.New("order: invalid side")
	// ErrInvalidPrice is returned when a price is not strictly positive.
	ErrInvalidPrice = errors.New("order: price must be positive")
	// ErrInvalidSize is returned when a resting order's size is not strictly positive.
	ErrInvalidSize = errors.New("order: size must be positive")
	// ErrEmptyID is returned when an order carries no exchange-assigned id.
	ErrEmptyID = errors.New("order: id must not be empty")
)

// Order is a resting order on one side of one instrument. Price and Size are
// fixed-point decimals: equality and ordering on Price must never be done
// with floating point, since wire precision varies per exchange and per
// instrument.
type Order struct {
	ID    string
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Validate checks the invariants from the data model: a resting order has a
// positive size, a positive price, a non-empty id and a known side.
func (o Order) Validate() error {
	if o.ID == "" {
		return ErrEmptyID
	}
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("%w: %d", ErrInvalidSide, o.Side)
	}
	if o.Price.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, o.Price)
	}
	if o.Size.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSize, o.Size)
	}
	return nil
}
