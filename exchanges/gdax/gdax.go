// Package gdax implements the Gdax/Coinbase full-channel Protocol: a
// sequenced open/done/match/change stream bootstrapped from the exchange's
// REST book endpoint, matching the mapping table in §4.4.
package gdax

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/thrasher-corp/l3bookd/common/convert"
	"github.com/thrasher-corp/l3bookd/exchanges/adapter"
	"github.com/thrasher-corp/l3bookd/exchanges/order"
	"github.com/thrasher-corp/l3bookd/rest"
	"github.com/thrasher-corp/l3bookd/stream"
)

// DefaultURL is the production Gdax/Coinbase Exchange websocket feed.
const DefaultURL = "wss://ws-feed.exchange.coinbase.com"

// RestBaseURL is the production REST host used to bootstrap a book.
const RestBaseURL = "https://api.exchange.coinbase.com"

// Protocol implements adapter.Protocol for one Gdax product (e.g. "BTC-USD").
type Protocol struct {
	URLOverride string
	ProductID  string
}

// New returns a Gdax protocol for the given product id.
func New(productID string) *Protocol {
	return &Protocol{ProductID: productID}
}

func (p *Protocol) Name() string { return "gdax" }

func (p *Protocol) URL() string {
	if p.URLOverride != "" {
		return p.URLOverride
	}
	return DefaultURL
}

func (p *Protocol) RequiresBootstrap() bool { return true }

// SubscribePayloads sends the "full" channel subscribe frame for ProductID.
func (p *Protocol) SubscribePayloads(instrumentID string) []any {
	return []any{
		map[string]any{
			"type":        "subscribe",
			"product_ids": []string{instrumentID},
			"channels":    []string{"full"},
		},
	}
}

// RestClient returns a rest.Client that bootstraps books for this product
// from the Gdax REST book endpoint.
func RestClient(productID string) *rest.Client {
	return rest.NewClient(RestBaseURL, rest.DecodeGdaxBook(productID), 0).
		WithPath(func(instrumentID string) string {
			return fmt.Sprintf("/products/%s/book?level=3", instrumentID)
		})
}

type wireMessage struct {
	Type         string `json:"type"`
	Sequence     *uint64 `json:"sequence"`
	OrderID      string `json:"order_id"`
	MakerOrderID string `json:"maker_order_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	RemainingSize string `json:"remaining_size"`
	NewSize      string `json:"new_size"`
	Size         string `json:"size"`
}

// Decode turns one "full" channel frame into zero or one Update. Frame
// types the channel emits but this reconstruction doesn't need (received,
// activate, ...) decode to nothing.
func (p *Protocol) Decode(msg stream.Message) ([]adapter.Update, error) {
	var w wireMessage
	if err := sonic.Unmarshal(msg.Raw, &w); err != nil {
		return nil, fmt.Errorf("gdax: decode: %w", err)
	}

	switch w.Type {
	case "open":
		return p.decodeOpen(w)
	case "done":
		return p.decodeDone(w)
	case "match":
		return p.decodeMatch(w)
	case "change":
		return p.decodeChange(w)
	default:
		return nil, nil
	}
}

func sideOf(wire string) (order.Side, error) {
	switch wire {
	case "buy":
		return order.Buy, nil
	case "sell":
		return order.Sell, nil
	default:
		return order.Buy, fmt.Errorf("gdax: invalid side %q", wire)
	}
}

func (p *Protocol) decodeOpen(w wireMessage) ([]adapter.Update, error) {
	side, err := sideOf(w.Side)
	if err != nil {
		return nil, err
	}
	price, err := convert.StringToDecimal(w.Price)
	if err != nil {
		return nil, err
	}
	size, err := convert.StringToDecimal(w.RemainingSize)
	if err != nil {
		return nil, err
	}
	return []adapter.Update{{
		Kind:        adapter.KindAdd,
		Sequence:    seqOf(w),
		HasSequence: w.Sequence != nil,
		Side:        side,
		Price:       price,
		Size:        size,
		OrderID:     w.OrderID,
	}}, nil
}

func (p *Protocol) decodeDone(w wireMessage) ([]adapter.Update, error) {
	// "done" for an order that never rested (market orders filled
	// immediately) has no price; nothing to remove.
	if w.Price == "" {
		return []adapter.Update{{Kind: adapter.KindRemove, Sequence: seqOf(w), HasSequence: w.Sequence != nil, OrderID: w.OrderID}}, nil
	}
	side, err := sideOf(w.Side)
	if err != nil {
		return nil, err
	}
	price, err := convert.StringToDecimal(w.Price)
	if err != nil {
		return nil, err
	}
	return []adapter.Update{{
		Kind:        adapter.KindRemove,
		Sequence:    seqOf(w),
		HasSequence: w.Sequence != nil,
		Side:        side,
		Price:       price,
		OrderID:     w.OrderID,
	}}, nil
}

func (p *Protocol) decodeMatch(w wireMessage) ([]adapter.Update, error) {
	side, err := sideOf(w.Side)
	if err != nil {
		return nil, err
	}
	price, err := convert.StringToDecimal(w.Price)
	if err != nil {
		return nil, err
	}
	size, err := convert.StringToDecimal(w.Size)
	if err != nil {
		return nil, err
	}
	return []adapter.Update{{
		Kind:         adapter.KindMatch,
		Sequence:     seqOf(w),
		HasSequence:  w.Sequence != nil,
		Side:         side,
		Price:        price,
		Size:         size,
		MakerOrderID: w.MakerOrderID,
	}}, nil
}

func (p *Protocol) decodeChange(w wireMessage) ([]adapter.Update, error) {
	// A change with no new_size is a self-trade prevention message this
	// reconstruction ignores.
	if w.NewSize == "" {
		return nil, nil
	}
	side, err := sideOf(w.Side)
	if err != nil {
		return nil, err
	}
	price, err := convert.StringToDecimal(w.Price)
	if err != nil {
		return nil, err
	}
	size, err := convert.StringToDecimal(w.NewSize)
	if err != nil {
		return nil, err
	}
	return []adapter.Update{{
		Kind:        adapter.KindChange,
		Sequence:    seqOf(w),
		HasSequence: w.Sequence != nil,
		Side:        side,
		Price:       price,
		Size:        size,
		OrderID:     w.OrderID,
	}}, nil
}

func seqOf(w wireMessage) uint64 {
	if w.Sequence == nil {
		return 0
	}
	return *w.Sequence
}
