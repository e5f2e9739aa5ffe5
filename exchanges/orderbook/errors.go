package orderbook

import "errors"

// Sentinel errors produced by the mutation algebra. Adapters inspect these
// with errors.Is to decide whether to log-and-continue or transition to
// Recovering.
var (
	// ErrUnknownOrder is returned by match() when a maker id cannot be
	// located; non-fatal, logged at debug by the caller.
	ErrUnknownOrder = errors.New("orderbook: unknown order")
	// ErrCrossedBookDetected is returned when the best bid would be at or
	// above the best ask after applying an update.
	ErrCrossedBookDetected = errors.New("orderbook: crossed book detected")
	// ErrSequenceMismatch is returned by match() when the head-of-queue
	// order id does not equal the maker id the exchange reported.
	ErrSequenceMismatch = errors.New("orderbook: sequence mismatch")
	// ErrEmptyBook is returned by queries on a side with no levels.
	ErrEmptyBook = errors.New("orderbook: side is empty")
)
