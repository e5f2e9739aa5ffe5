// Package bitfinex implements the Bitfinex raw order book (R0 precision)
// Protocol: a channel of [order_id, price, amount] triples with no sequence
// numbers, integrity-checked instead by a periodic CRC32 "cs" frame over
// the top 25 price levels per side.
package bitfinex

import (
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/l3bookd/exchanges/adapter"
	"github.com/thrasher-corp/l3bookd/exchanges/order"
	"github.com/thrasher-corp/l3bookd/exchanges/orderbook"
	"github.com/thrasher-corp/l3bookd/stream"
)

// DefaultURL is the production Bitfinex public websocket feed.
const DefaultURL = "wss://api-pub.bitfinex.com/ws/2"

// checksumDepth is how many top levels per side the "cs" checksum covers.
const checksumDepth = 25

// Protocol implements adapter.Protocol for one Bitfinex raw book channel.
// channelID is learned from the subscribe ack and used to tell this
// product's frames apart from any other channel sharing the connection.
type Protocol struct {
	URLOverride string
	Symbol      string

	channelID int64
}

// New returns a Bitfinex raw-book protocol for symbol (e.g. "tBTCUSD").
func New(symbol string) *Protocol {
	return &Protocol{Symbol: symbol}
}

func (p *Protocol) Name() string { return "bitfinex" }

func (p *Protocol) URL() string {
	if p.URLOverride != "" {
		return p.URLOverride
	}
	return DefaultURL
}

// RequiresBootstrap is false: a raw book channel's first frame is itself a
// full snapshot, so there is no separate REST bootstrap step.
func (p *Protocol) RequiresBootstrap() bool { return false }

func (p *Protocol) SubscribePayloads(instrumentID string) []any {
	return []any{
		map[string]any{
			"event":   "subscribe",
			"channel": "book",
			"symbol":  instrumentID,
			"prec":    "R0",
			"freq":    "F0",
			"len":     "100",
		},
	}
}

// Decode handles three frame shapes: the subscribe ack (learns channelID,
// produces no Update), a checksum frame ["cs", value] wrapped in
// [channelID, "cs", value], and a book frame, which is either a snapshot
// (array of triples) or a single update triple.
func (p *Protocol) Decode(msg stream.Message) ([]adapter.Update, error) {
	raw := msg.Raw
	if len(raw) == 0 {
		return nil, fmt.Errorf("bitfinex: empty frame")
	}

	if raw[0] == '{' {
		return p.decodeEvent(raw)
	}

	chanID, err := jsonparser.GetInt(raw, "[0]")
	if err != nil {
		return nil, fmt.Errorf("bitfinex: decode channel id: %w", err)
	}
	if p.channelID != 0 && chanID != p.channelID {
		return nil, nil
	}

	// ["cs", value] payload at index 1 is a string literal "cs"; a normal
	// update/snapshot has a number or array there instead.
	if kind, err := jsonparser.GetString(raw, "[1]"); err == nil && kind == "cs" {
		cs, err := jsonparser.GetInt(raw, "[2]")
		if err != nil {
			return nil, fmt.Errorf("bitfinex: decode checksum: %w", err)
		}
		return []adapter.Update{{Kind: adapter.KindChecksum, Checksum: uint32(cs)}}, nil
	}

	isSnapshot := false
	if _, dataType, _, err := jsonparser.Get(raw, "[1]", "[0]"); err == nil && dataType == jsonparser.Array {
		isSnapshot = true
	}

	if isSnapshot {
		return p.decodeSnapshot(raw)
	}
	u, err := p.decodeEntry(raw, "[1]")
	if err != nil {
		return nil, err
	}
	return []adapter.Update{u}, nil
}

func (p *Protocol) decodeEvent(raw []byte) ([]adapter.Update, error) {
	evt, _ := jsonparser.GetString(raw, "event")
	if evt != "subscribed" {
		return nil, nil
	}
	ch, err := jsonparser.GetInt(raw, "chanId")
	if err != nil {
		return nil, fmt.Errorf("bitfinex: subscribed ack missing chanId: %w", err)
	}
	p.channelID = ch
	return nil, nil
}

func (p *Protocol) decodeSnapshot(raw []byte) ([]adapter.Update, error) {
	var orders []order.Order
	var decodeErr error
	_, err := jsonparser.ArrayEach([]byte(raw), func(value []byte, dataType jsonparser.ValueType, offset int, e error) {
		if decodeErr != nil || e != nil {
			return
		}
		o, side, err := parseEntry(value)
		if err != nil {
			decodeErr = err
			return
		}
		o.Side = side
		orders = append(orders, o)
	}, "[1]")
	if err != nil {
		return nil, fmt.Errorf("bitfinex: decode snapshot: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return []adapter.Update{{Kind: adapter.KindReset, ResetOrders: orders}}, nil
}

func (p *Protocol) decodeEntry(raw []byte, path string) (adapter.Update, error) {
	value, _, _, err := jsonparser.Get(raw, path)
	if err != nil {
		return adapter.Update{}, fmt.Errorf("bitfinex: decode entry: %w", err)
	}
	o, side, err := parseEntry(value)
	if err != nil {
		return adapter.Update{}, err
	}
	// price == 0 on an update means "remove this order id" (the raw book
	// channel's delete signal); a nonzero price is an add/replace.
	if o.Price.Sign() == 0 {
		return adapter.Update{Kind: adapter.KindRemove, Side: side, OrderID: o.ID}, nil
	}
	return adapter.Update{Kind: adapter.KindAdd, Side: side, Price: o.Price, Size: o.Size, OrderID: o.ID}, nil
}

// parseEntry decodes one raw-book triple [order_id, price, amount]. Side is
// resolved from amount's sign: amount > 0 is a bid, amount < 0 is an ask
// (the resolved reading of the documented amount==-1 edge case: negative
// amount is always the ask side, regardless of magnitude).
func parseEntry(value []byte) (order.Order, order.Side, error) {
	var id, rawPrice, rawAmount []byte
	idx := 0
	_, err := jsonparser.ArrayEach(value, func(v []byte, dt jsonparser.ValueType, offset int, e error) {
		switch idx {
		case 0:
			id = v
		case 1:
			rawPrice = v
		case 2:
			rawAmount = v
		}
		idx++
	})
	if err != nil {
		return order.Order{}, 0, fmt.Errorf("bitfinex: decode triple: %w", err)
	}

	orderID := string(id)
	price, err := decimal.NewFromString(string(rawPrice))
	if err != nil {
		return order.Order{}, 0, fmt.Errorf("bitfinex: decode price: %w", err)
	}
	amount, err := decimal.NewFromString(string(rawAmount))
	if err != nil {
		return order.Order{}, 0, fmt.Errorf("bitfinex: decode amount: %w", err)
	}

	side := order.Buy
	if amount.Sign() < 0 {
		side = order.Sell
	}
	return order.Order{ID: orderID, Price: price, Size: amount.Abs()}, side, nil
}

// VerifyChecksum recomputes Bitfinex's CRC32 over the top checksumDepth
// price levels per side and compares it against want. Every resting order
// is encoded as order_id:price:amount (ask amounts negated); all bid levels
// come first, best-first, then all ask levels, best-first, joined by ":".
func (p *Protocol) VerifyChecksum(book *orderbook.Book, want uint32) error {
	parts := make([]string, 0, checksumDepth*4)

	bids := book.Depth(order.Buy, decimal.Zero, decimal.NewFromInt(1<<62))
	asks := book.Depth(order.Sell, decimal.Zero, decimal.NewFromInt(1<<62))

	for i := 0; i < checksumDepth && i < len(bids); i++ {
		for _, o := range bids[i].Orders {
			parts = append(parts, o.ID, bids[i].Price.String(), o.Size.String())
		}
	}
	for i := 0; i < checksumDepth && i < len(asks); i++ {
		for _, o := range asks[i].Orders {
			parts = append(parts, o.ID, asks[i].Price.String(), o.Size.Neg().String())
		}
	}

	got := crc32.ChecksumIEEE([]byte(strings.Join(parts, ":")))
	if got != want {
		return fmt.Errorf("bitfinex: checksum mismatch: got %d want %d", got, want)
	}
	return nil
}
