// Package bittrex implements the Bittrex market-depth Protocol: every
// message is a full replacement of both sides, so there is no sequence
// tracking, gap detection, or checksum verification — each frame decodes
// to a single KindReset Update.
package bittrex

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/thrasher-corp/l3bookd/common/convert"
	"github.com/thrasher-corp/l3bookd/exchanges/adapter"
	"github.com/thrasher-corp/l3bookd/exchanges/order"
	"github.com/thrasher-corp/l3bookd/stream"
)

// DefaultURL is the production Bittrex market-depth websocket feed.
const DefaultURL = "wss://socket-v3.bittrex.com/signalr"

// Protocol implements adapter.Protocol for one Bittrex market symbol.
type Protocol struct {
	URLOverride string
	MarketSymbol string
}

// New returns a Bittrex protocol for symbol (e.g. "BTC-USD").
func New(symbol string) *Protocol {
	return &Protocol{MarketSymbol: symbol}
}

func (p *Protocol) Name() string { return "bittrex" }

func (p *Protocol) URL() string {
	if p.URLOverride != "" {
		return p.URLOverride
	}
	return DefaultURL
}

// RequiresBootstrap is false: every orderBook frame is already a complete
// replacement, so there is nothing for a REST snapshot to seed.
func (p *Protocol) RequiresBootstrap() bool { return false }

func (p *Protocol) SubscribePayloads(instrumentID string) []any {
	return []any{
		map[string]any{
			"H": "c3",
			"M": "Subscribe",
			"A": [][]string{{fmt.Sprintf("orderbook_%s_25", instrumentID)}},
		},
	}
}

type wireEntry struct {
	Rate     string `json:"Rate"`
	Quantity string `json:"Quantity"`
}

type wireBook struct {
	MarketName string      `json:"MarketName"`
	Buys       []wireEntry `json:"Buys"`
	Sells      []wireEntry `json:"Sells"`
}

// Decode treats every whole-book frame as the new, complete book: Buys and
// Sells here are full depth snapshots, not incremental mutations. A frame
// with both Buys and Sells empty decodes to nothing, so the book is left as
// it was.
func (p *Protocol) Decode(msg stream.Message) ([]adapter.Update, error) {
	var w wireBook
	if err := sonic.Unmarshal(msg.Raw, &w); err != nil {
		return nil, fmt.Errorf("bittrex: decode: %w", err)
	}
	if len(w.Buys) == 0 && len(w.Sells) == 0 {
		return nil, nil
	}

	orders := make([]order.Order, 0, len(w.Buys)+len(w.Sells))
	for i, e := range w.Buys {
		o, err := entryToOrder(e, order.Buy, i)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	for i, e := range w.Sells {
		o, err := entryToOrder(e, order.Sell, i)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return []adapter.Update{{Kind: adapter.KindReset, ResetOrders: orders}}, nil
}

// entryToOrder synthesizes a stable per-level order id. Bittrex's
// market-depth channel never exposes individual resting order ids, only
// aggregate size per price level, so each level is represented as a single
// synthetic order keyed by its rank within the frame.
func entryToOrder(e wireEntry, side order.Side, rank int) (order.Order, error) {
	price, err := convert.StringToDecimal(e.Rate)
	if err != nil {
		return order.Order{}, err
	}
	size, err := convert.StringToDecimal(e.Quantity)
	if err != nil {
		return order.Order{}, err
	}
	return order.Order{
		ID:    fmt.Sprintf("%s-%d", side, rank),
		Side:  side,
		Price: price,
		Size:  size,
	}, nil
}
