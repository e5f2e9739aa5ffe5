// Package orderbook implements the L3 order book state machine: an
// ordered-by-price book of FIFO order queues, and the mutation algebra
// (add/remove/match/change) that exchange adapters drive from wire events.
//
// A Book is owned exclusively by one adapter worker (see exchanges/adapter);
// nothing here takes a lock, by design — the single-writer-per-book
// invariant removes the need for one on the hot path. Readers only ever see
// Snapshot values, which are immutable once produced.
package orderbook

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/l3bookd/exchanges/order"
)

// Book is the per-instrument aggregate described in the data model: two
// sides plus a monotonic sequence counter.
type Book struct {
	Exchange     string
	InstrumentID string
	Bids         bidLevels
	Asks         askLevels
	Sequence     uint64
}

// New returns an empty book for the given exchange/instrument pair.
func New(exchange, instrumentID string) *Book {
	return &Book{Exchange: exchange, InstrumentID: instrumentID}
}

func (b *Book) sideLevels(s order.Side) levelSide {
	if s == order.Buy {
		return &b.Bids
	}
	return &b.Asks
}

// levelSide is the minimal interface both askLevels and bidLevels satisfy;
// it lets the mutation algebra below operate without caring which side it
// was handed.
type levelSide interface {
	insert(decimal.Decimal, order.Order)
	modifySize(decimal.Decimal, string, decimal.Decimal) bool
	erase(decimal.Decimal, string) bool
	levelAt(decimal.Decimal) (Level, bool)
	load([]order.Order)
	best() (Level, bool)
}

// Add inserts a new resting order at its price level.
func (b *Book) Add(o order.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	b.sideLevels(o.Side).insert(o.Price, o)
	return nil
}

// Remove erases the given order. It silently no-ops (reports found=false)
// if the order is not present — a done message may reference an unknown
// order after a gap or out-of-order delivery.
func (b *Book) Remove(side order.Side, price decimal.Decimal, orderID string) (found bool) {
	return b.sideLevels(side).erase(price, orderID)
}

// Change updates the size of an existing order. newSize == 0 behaves like
// Remove. A missing order is a no-op (found=false).
func (b *Book) Change(side order.Side, price decimal.Decimal, orderID string, newSize decimal.Decimal) (found bool) {
	return b.sideLevels(side).modifySize(price, orderID, newSize)
}

// Match decrements the size of the head-of-queue order on the given side at
// the given price. If the remaining size reaches zero the order is
// dropped. The head's order id must equal makerOrderID: any mismatch means
// the book has desynchronized from the exchange's view and the adapter must
// recover.
func (b *Book) Match(side order.Side, price decimal.Decimal, makerOrderID string, size decimal.Decimal) error {
	levels := b.sideLevels(side)
	level, ok := levels.levelAt(price)
	if !ok || len(level.Orders) == 0 {
		return fmt.Errorf("%w: no resting level at %s for match against %s", ErrUnknownOrder, price, makerOrderID)
	}
	head := level.Orders[0]
	if head.ID != makerOrderID {
		return fmt.Errorf("%w: head order %s does not match maker %s", ErrSequenceMismatch, head.ID, makerOrderID)
	}
	remaining := head.Size.Sub(size)
	levels.modifySize(price, makerOrderID, remaining)
	return nil
}

// Reset atomically replaces both sides with the given ordered list of
// resting orders, used on bootstrap and gap recovery. Order within a price
// level is preserved from the input slice (arrival-time priority).
func (b *Book) Reset(orders []order.Order) {
	var bids, asks []order.Order
	for _, o := range orders {
		if o.Side == order.Buy {
			bids = append(bids, o)
		} else {
			asks = append(asks, o)
		}
	}
	b.Bids.load(bids)
	b.Asks.load(asks)
}

// BestBid returns the highest resting bid price, if any.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	l, ok := b.Bids.best()
	if !ok {
		return decimal.Zero, false
	}
	return l.Price, true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	l, ok := b.Asks.best()
	if !ok {
		return decimal.Zero, false
	}
	return l.Price, true
}

// VerifyNotCrossed returns ErrCrossedBookDetected if the best bid is at or
// above the best ask. Both sides must be non-empty for a cross to be
// possible; an adapter calls this at every message boundary, never
// mid-message, since a match sequence can transiently cross the book.
func (b *Book) VerifyNotCrossed() error {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	if !hasBid || !hasAsk {
		return nil
	}
	if bid.GreaterThanOrEqual(ask) {
		return fmt.Errorf("%w: best bid %s >= best ask %s", ErrCrossedBookDetected, bid, ask)
	}
	return nil
}

// Depth returns every level within [lo, hi] (inclusive) on the given side,
// in best-first order.
func (b *Book) Depth(side order.Side, lo, hi decimal.Decimal) Levels {
	var src Levels
	if side == order.Buy {
		src = b.Bids.Levels
	} else {
		src = b.Asks.Levels
	}
	out := make(Levels, 0, len(src))
	for _, l := range src {
		if l.Price.GreaterThanOrEqual(lo) && l.Price.LessThanOrEqual(hi) {
			out = append(out, l)
		}
	}
	return out
}

// LevelView is one (price, size, order id) entry of a published Snapshot.
type LevelView struct {
	Price   decimal.Decimal
	Size    decimal.Decimal
	OrderID string
}

// Snapshot is an immutable, self-contained point-in-time view of a book.
// Once produced it is never mutated; it is safe to hand to any number of
// subscribers without copying further.
type Snapshot struct {
	Exchange     string
	InstrumentID string
	Sequence     uint64
	Bids         []LevelView
	Asks         []LevelView
	ProducedAt   time.Time
}

func flatten(l Levels, limit int) []LevelView {
	levels := l.iterFromTop(limit)
	out := make([]LevelView, 0, len(levels))
	for _, lvl := range levels {
		for _, o := range lvl.Orders {
			out = append(out, LevelView{Price: lvl.Price, Size: o.Size, OrderID: o.ID})
		}
	}
	return out
}

// Snapshot materializes an immutable copy of both sides in best-first
// order, stamping the current sequence. limit <= 0 returns every level.
func (b *Book) Snapshot(limit int, now time.Time) Snapshot {
	return Snapshot{
		Exchange:     b.Exchange,
		InstrumentID: b.InstrumentID,
		Sequence:     b.Sequence,
		Bids:         flatten(b.Bids.Levels, limit),
		Asks:         flatten(b.Asks.Levels, limit),
		ProducedAt:   now,
	}
}

// ToOrders flattens a Snapshot back into the arrival-ordered Order list that
// Reset expects, used for the bootstrap-idempotence and round-trip
// properties.
func (s Snapshot) ToOrders() []order.Order {
	out := make([]order.Order, 0, len(s.Bids)+len(s.Asks))
	for _, v := range s.Bids {
		out = append(out, order.Order{ID: v.OrderID, Side: order.Buy, Price: v.Price, Size: v.Size})
	}
	for _, v := range s.Asks {
		out = append(out, order.Order{ID: v.OrderID, Side: order.Sell, Price: v.Price, Size: v.Size})
	}
	return out
}
