package adapter

import "sort"

// pendingBuffer collects live updates seen while a REST bootstrap or
// recovery snapshot is in flight, then drains them against the snapshot's
// sequence once it lands. Adapted from the websocket order-book buffer's
// buffer-then-sort-then-apply shape (collect everything received during the
// slow path, sort once by sequence, then replay in order) rather than
// applying updates one at a time against a book that isn't ready yet.
type pendingBuffer struct {
	items []Update
}

func (p *pendingBuffer) add(u Update) { p.items = append(p.items, u) }

func (p *pendingBuffer) reset() { p.items = nil }

func (p *pendingBuffer) len() int { return len(p.items) }

// sorted returns the buffered updates ordered by sequence. Updates without
// a sequence (Bitfinex, Bittrex) keep their relative arrival order and sort
// after every sequenced update, since those protocols never need draining
// against a bootstrap sequence in the first place.
func (p *pendingBuffer) sorted() []Update {
	out := make([]Update, len(p.items))
	copy(out, p.items)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].HasSequence {
			return false
		}
		if !out[j].HasSequence {
			return true
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}
