package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrasher-corp/l3bookd/exchanges/order"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func mkOrder(id, price, size string, side order.Side) order.Order {
	return order.Order{ID: id, Side: side, Price: dec(price), Size: dec(size)}
}

// Check asserts the level count and price ordering of an ask or bid Levels.
func Check(t *testing.T, depth any, expectedLevels int) {
	t.Helper()
	var l Levels
	var ascendingOrder bool
	switch v := depth.(type) {
	case askLevels:
		l, ascendingOrder = v.Levels, true
	case bidLevels:
		l, ascendingOrder = v.Levels, false
	default:
		require.Failf(t, "Check must receive askLevels or bidLevels", "got %T", depth)
		return
	}
	require.Lenf(t, l, expectedLevels, "level count for %T", depth)
	for i := 1; i < len(l); i++ {
		if ascendingOrder {
			require.Truef(t, l[i-1].Price.LessThan(l[i].Price), "askLevels must be strictly ascending")
		} else {
			require.Truef(t, l[i-1].Price.GreaterThan(l[i].Price), "bidLevels must be strictly descending")
		}
	}
}

func TestLoad(t *testing.T) {
	a := askLevels{}
	Check(t, a, 0)

	a.load([]order.Order{
		mkOrder("1", "1", "1", order.Sell),
		mkOrder("2", "3", "1", order.Sell),
		mkOrder("3", "5", "1", order.Sell),
	})
	Check(t, a, 3)

	a.load(nil)
	Check(t, a, 0)
}

func TestInsertFIFO(t *testing.T) {
	a := askLevels{}
	a.insert(dec("100"), mkOrder("A", "100", "1.0", order.Sell))
	a.insert(dec("100"), mkOrder("B", "100", "2.0", order.Sell))

	Check(t, a, 1)
	require.Len(t, a.Levels[0].Orders, 2)
	assert.Equal(t, "A", a.Levels[0].Orders[0].ID, "FIFO: A must be queued ahead of B")
	assert.Equal(t, "B", a.Levels[0].Orders[1].ID)
}

func TestInsertOrdering(t *testing.T) {
	a := askLevels{}
	a.insert(dec("5"), mkOrder("mid", "5", "1", order.Sell))
	a.insert(dec("1"), mkOrder("head", "1", "1", order.Sell))
	a.insert(dec("9"), mkOrder("tail", "9", "1", order.Sell))
	Check(t, a, 3)
	assert.Equal(t, "head", a.Levels[0].Orders[0].ID)
	assert.Equal(t, "mid", a.Levels[1].Orders[0].ID)
	assert.Equal(t, "tail", a.Levels[2].Orders[0].ID)

	b := bidLevels{}
	b.insert(dec("5"), mkOrder("mid", "5", "1", order.Buy))
	b.insert(dec("9"), mkOrder("head", "9", "1", order.Buy))
	b.insert(dec("1"), mkOrder("tail", "1", "1", order.Buy))
	Check(t, b, 3)
	assert.Equal(t, "head", b.Levels[0].Orders[0].ID)
	assert.Equal(t, "mid", b.Levels[1].Orders[0].ID)
	assert.Equal(t, "tail", b.Levels[2].Orders[0].ID)
}

func TestModifySizeDeletesEmptyLevel(t *testing.T) {
	a := askLevels{}
	a.insert(dec("100"), mkOrder("A", "100", "1.0", order.Sell))

	require.True(t, a.modifySize(dec("100"), "A", dec("0.5")))
	Check(t, a, 1)
	assert.True(t, a.Levels[0].Orders[0].Size.Equal(dec("0.5")))

	require.True(t, a.modifySize(dec("100"), "A", dec("0")))
	Check(t, a, 0)
}

func TestEraseUnknownOrderIsNoOp(t *testing.T) {
	a := askLevels{}
	a.insert(dec("100"), mkOrder("A", "100", "1.0", order.Sell))
	require.False(t, a.erase(dec("100"), "ghost"))
	require.False(t, a.erase(dec("999"), "A"))
	Check(t, a, 1)
}

func TestLevelAtExactMatchOnly(t *testing.T) {
	a := askLevels{}
	a.insert(dec("100"), mkOrder("A", "100", "1", order.Sell))
	_, ok := a.levelAt(dec("100.5"))
	require.False(t, ok, "levelAt must not do nearest-match")
	l, ok := a.levelAt(dec("100"))
	require.True(t, ok)
	assert.Equal(t, "A", l.Orders[0].ID)
}
