package orderbook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrasher-corp/l3bookd/exchanges/order"
)

// TestGdaxOpenMatchDoneScenario is the S1 end-to-end scenario from the spec:
// a fresh book takes open/open/match/done and ends with one resting order.
func TestGdaxOpenMatchDoneScenario(t *testing.T) {
	b := New("gdax", "BTC-USD")
	b.Sequence = 100

	require.NoError(t, b.Add(mkOrder("A", "100.00", "1.0", order.Sell)))
	b.Sequence = 101
	require.NoError(t, b.Add(mkOrder("B", "100.00", "2.0", order.Sell)))
	b.Sequence = 102

	require.NoError(t, b.Match(order.Sell, dec("100.00"), "A", dec("0.5")))
	b.Sequence = 103

	found := b.Remove(order.Sell, dec("100.00"), "A")
	require.True(t, found)
	b.Sequence = 104

	Check(t, b.Asks, 1)
	require.Len(t, b.Asks.Levels[0].Orders, 1)
	assert.Equal(t, "B", b.Asks.Levels[0].Orders[0].ID)
	assert.True(t, b.Asks.Levels[0].Orders[0].Size.Equal(dec("2.0")))
	assert.EqualValues(t, 104, b.Sequence)
}

func TestMatchRequiresHeadOfQueue(t *testing.T) {
	b := New("gdax", "BTC-USD")
	require.NoError(t, b.Add(mkOrder("A", "100", "1.0", order.Sell)))
	require.NoError(t, b.Add(mkOrder("B", "100", "1.0", order.Sell)))

	err := b.Match(order.Sell, dec("100"), "B", dec("0.5"))
	require.ErrorIs(t, err, ErrSequenceMismatch, "matching against a non-head order must raise SequenceMismatch")
}

func TestMatchDropsExhaustedOrder(t *testing.T) {
	b := New("gdax", "BTC-USD")
	require.NoError(t, b.Add(mkOrder("A", "100", "1.0", order.Sell)))
	require.NoError(t, b.Add(mkOrder("B", "100", "1.0", order.Sell)))

	require.NoError(t, b.Match(order.Sell, dec("100"), "A", dec("1.0")))
	Check(t, b.Asks, 1)
	require.Len(t, b.Asks.Levels[0].Orders, 1)
	assert.Equal(t, "B", b.Asks.Levels[0].Orders[0].ID)
}

func TestChangeNoOpOnUnknownOrder(t *testing.T) {
	b := New("gdax", "BTC-USD")
	require.NoError(t, b.Add(mkOrder("A", "100", "1.0", order.Sell)))
	found := b.Change(order.Sell, dec("100"), "ghost", dec("5"))
	assert.False(t, found)
}

func TestChangeToZeroRemoves(t *testing.T) {
	b := New("gdax", "BTC-USD")
	require.NoError(t, b.Add(mkOrder("A", "100", "1.0", order.Sell)))
	found := b.Change(order.Sell, dec("100"), "A", dec("0"))
	require.True(t, found)
	Check(t, b.Asks, 0)
}

func TestCrossedBookDetected(t *testing.T) {
	b := New("bitfinex", "tBTCUSD")
	require.NoError(t, b.Add(mkOrder("1", "100.0", "2.0", order.Buy)))
	require.NoError(t, b.Add(mkOrder("2", "99.0", "1.5", order.Sell)))

	err := b.VerifyNotCrossed()
	require.ErrorIs(t, err, ErrCrossedBookDetected)
}

// TestNoOrderAliasing is property 1: every order id appears in at most one
// price level on at most one side, across a sequence of mutations.
func TestNoOrderAliasing(t *testing.T) {
	b := New("gdax", "BTC-USD")
	require.NoError(t, b.Add(mkOrder("1", "100", "1", order.Sell)))
	require.NoError(t, b.Add(mkOrder("2", "101", "1", order.Sell)))
	b.Change(order.Sell, dec("100"), "1", dec("0.5"))

	seen := map[string]int{}
	for _, lvl := range b.Asks.Levels {
		for _, o := range lvl.Orders {
			seen[o.ID]++
		}
	}
	for _, lvl := range b.Bids.Levels {
		for _, o := range lvl.Orders {
			seen[o.ID]++
		}
	}
	for id, count := range seen {
		assert.LessOrEqualf(t, count, 1, "order %s appeared more than once", id)
	}
}

// TestBootstrapIdempotence is property 6: resetting with the same snapshot
// twice yields an identical book.
func TestBootstrapIdempotence(t *testing.T) {
	orders := []order.Order{
		mkOrder("1", "100", "1.0", order.Sell),
		mkOrder("2", "101", "2.0", order.Sell),
		mkOrder("3", "99", "1.0", order.Buy),
	}
	b := New("gdax", "BTC-USD")
	b.Reset(orders)
	first := b.Snapshot(0, time.Unix(0, 0))

	b.Reset(orders)
	second := b.Snapshot(0, time.Unix(0, 0))

	assert.Equal(t, first.Bids, second.Bids)
	assert.Equal(t, first.Asks, second.Asks)
}

// TestRoundTrip is property 7: reset(snapshot.orders) then snapshot yields
// an equal book, modulo the FIFO-tie order which must itself be preserved.
func TestRoundTrip(t *testing.T) {
	orders := []order.Order{
		mkOrder("1", "100", "1.0", order.Sell),
		mkOrder("2", "100", "2.0", order.Sell),
		mkOrder("3", "99", "1.0", order.Buy),
	}
	b := New("gdax", "BTC-USD")
	b.Reset(orders)
	snap := b.Snapshot(0, time.Unix(0, 0))

	b2 := New("gdax", "BTC-USD")
	b2.Reset(snap.ToOrders())
	snap2 := b2.Snapshot(0, time.Unix(0, 0))

	assert.Equal(t, snap.Bids, snap2.Bids)
	assert.Equal(t, snap.Asks, snap2.Asks)
}

func TestSnapshotLimit(t *testing.T) {
	b := New("gdax", "BTC-USD")
	prices := []string{"100", "101", "102", "103", "104"}
	for i, p := range prices {
		require.NoError(t, b.Add(mkOrder(fmt.Sprintf("o%d", i), p, "1", order.Sell)))
	}
	snap := b.Snapshot(2, time.Unix(0, 0))
	assert.Len(t, snap.Asks, 2)
}
