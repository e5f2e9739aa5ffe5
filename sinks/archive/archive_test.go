package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrasher-corp/l3bookd/exchanges/orderbook"
)

func TestSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.bin")

	sink, err := Open(path)
	require.NoError(t, err)

	snap1 := orderbook.Snapshot{
		Exchange:     "gdax",
		InstrumentID: "BTC-USD",
		Sequence:     1,
		ProducedAt:   time.Unix(1000, 0),
		Bids:         []orderbook.LevelView{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1), OrderID: "a"}},
	}
	snap2 := orderbook.Snapshot{
		Exchange:     "gdax",
		InstrumentID: "BTC-USD",
		Sequence:     2,
		ProducedAt:   time.Unix(2000, 0),
		Asks:         []orderbook.LevelView{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(2), OrderID: "b"}},
	}
	sink.Deliver(snap1)
	sink.Deliver(snap2)
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	snaps, err := ReadAll(f)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.EqualValues(t, 1, snaps[0].Sequence)
	assert.EqualValues(t, 2, snaps[1].Sequence)
	require.Len(t, snaps[0].Bids, 1)
	assert.Equal(t, "a", snaps[0].Bids[0].OrderID)
	require.Len(t, snaps[1].Asks, 1)
	assert.Equal(t, "b", snaps[1].Asks[0].OrderID)
}
