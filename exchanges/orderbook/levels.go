package orderbook

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/l3bookd/exchanges/order"
)

// Level is every resting order at one (instrument, side, price) point, held
// in arrival-time (FIFO) order. An empty Level is never retained in a
// Levels slice; it is deleted as soon as its last order is removed.
type Level struct {
	Price  decimal.Decimal
	Orders []order.Order
}

// total sums the remaining size of every order at this level.
func (l Level) total() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range l.Orders {
		sum = sum.Add(o.Size)
	}
	return sum
}

// Levels is a price-ordered run of Level. The ordering direction (ascending
// for asks, descending for bids) is supplied by the embedding type's less
// function below; Levels itself only knows how to be searched and spliced
// given that direction.
type Levels []Level

// load replaces the contents of the receiver wholesale, used by bootstrap
// and gap-recovery resets. Entries are grouped into levels by price,
// preserving the arrival order of orders sharing a price.
func (l *Levels) load(orders []order.Order, less func(a, b decimal.Decimal) bool) {
	if len(orders) == 0 {
		*l = nil
		return
	}
	var out Levels
	for _, o := range orders {
		out.insert(o.Price, o, less)
	}
	*l = out
}

// search returns the index of the level at exactly price, and whether one
// was found, using binary search under the supplied ordering.
func (l Levels) search(price decimal.Decimal, less func(a, b decimal.Decimal) bool) (int, bool) {
	i := sort.Search(len(l), func(i int) bool { return !less(l[i].Price, price) })
	if i < len(l) && l[i].Price.Equal(price) {
		return i, true
	}
	return i, false
}

// insert appends order to the tail of the level at price, creating the level
// (at the position the ordering dictates) if it is not already present.
func (l *Levels) insert(price decimal.Decimal, o order.Order, less func(a, b decimal.Decimal) bool) {
	i, found := l.search(price, less)
	if found {
		(*l)[i].Orders = append((*l)[i].Orders, o)
		return
	}
	*l = append(*l, Level{})
	copy((*l)[i+1:], (*l)[i:])
	(*l)[i] = Level{Price: price, Orders: []order.Order{o}}
}

// modifySize locates orderID at price and sets its size to newSize; if
// newSize is zero the order (and, if it was the last one, the level) is
// removed. Reports whether an order was found.
func (l *Levels) modifySize(price decimal.Decimal, orderID string, newSize decimal.Decimal, less func(a, b decimal.Decimal) bool) bool {
	i, found := l.search(price, less)
	if !found {
		return false
	}
	orders := (*l)[i].Orders
	for j := range orders {
		if orders[j].ID != orderID {
			continue
		}
		if newSize.Sign() <= 0 {
			orders = append(orders[:j], orders[j+1:]...)
		} else {
			orders[j].Size = newSize
		}
		if len(orders) == 0 {
			*l = append((*l)[:i], (*l)[i+1:]...)
		} else {
			(*l)[i].Orders = orders
		}
		return true
	}
	return false
}

// erase removes orderID from the level at price outright. Reports whether
// an order was found.
func (l *Levels) erase(price decimal.Decimal, orderID string, less func(a, b decimal.Decimal) bool) bool {
	return l.modifySize(price, orderID, decimal.Zero, less)
}

// levelAt borrows the level at exactly price; no nearest-match.
func (l Levels) levelAt(price decimal.Decimal, less func(a, b decimal.Decimal) bool) (Level, bool) {
	i, found := l.search(price, less)
	if !found {
		return Level{}, false
	}
	return l[i], true
}

// best returns the top-of-book level: the first entry in the ordering this
// Levels was built with (min price for asks, max price for bids).
func (l Levels) best() (Level, bool) {
	if len(l) == 0 {
		return Level{}, false
	}
	return l[0], true
}

// iterFromTop yields up to limit levels in best-first order. limit <= 0
// means "all levels".
func (l Levels) iterFromTop(limit int) Levels {
	if limit <= 0 || limit > len(l) {
		limit = len(l)
	}
	return l[:limit]
}

func ascending(a, b decimal.Decimal) bool  { return a.LessThan(b) }
func descending(a, b decimal.Decimal) bool { return a.GreaterThan(b) }

// askLevels keeps Levels sorted ascending by price (best ask at index 0).
type askLevels struct{ Levels }

func (a *askLevels) load(orders []order.Order)      { a.Levels.load(orders, ascending) }
func (a *askLevels) insert(p decimal.Decimal, o order.Order) {
	a.Levels.insert(p, o, ascending)
}
func (a *askLevels) modifySize(p decimal.Decimal, id string, sz decimal.Decimal) bool {
	return a.Levels.modifySize(p, id, sz, ascending)
}
func (a *askLevels) erase(p decimal.Decimal, id string) bool { return a.Levels.erase(p, id, ascending) }
func (a askLevels) levelAt(p decimal.Decimal) (Level, bool)  { return a.Levels.levelAt(p, ascending) }

// bidLevels keeps Levels sorted descending by price (best bid at index 0).
type bidLevels struct{ Levels }

func (b *bidLevels) load(orders []order.Order)      { b.Levels.load(orders, descending) }
func (b *bidLevels) insert(p decimal.Decimal, o order.Order) {
	b.Levels.insert(p, o, descending)
}
func (b *bidLevels) modifySize(p decimal.Decimal, id string, sz decimal.Decimal) bool {
	return b.Levels.modifySize(p, id, sz, descending)
}
func (b *bidLevels) erase(p decimal.Decimal, id string) bool { return b.Levels.erase(p, id, descending) }
func (b bidLevels) levelAt(p decimal.Decimal) (Level, bool)  { return b.Levels.levelAt(p, descending) }
