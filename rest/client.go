// Package rest defines the RestClient boundary (C4): the interface exchange
// adapters use to fetch a full book snapshot for bootstrap and gap
// recovery, plus an HTTP-backed implementation with shared client-side rate
// limiting.
package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/time/rate"

	"github.com/thrasher-corp/l3bookd/common/convert"
	"github.com/thrasher-corp/l3bookd/exchanges/order"
)

// DefaultMinInterval is the minimum spacing between REST calls sharing one
// Client, per spec (≥400ms).
const DefaultMinInterval = 400 * time.Millisecond

// DefaultTimeout is the per-request timeout before a snapshot fetch is
// retried with backoff.
const DefaultTimeout = 30 * time.Second

// DefaultMaxRetries bounds the retry-with-backoff loop before a snapshot
// fetch is surfaced as fatal to the caller.
const DefaultMaxRetries = 5

// Snapshot is the REST-fetched book bootstrap payload: a sequence number
// plus the resting orders that make it up.
type Snapshot struct {
	Sequence uint64
	Orders   []order.Order
}

// RestClient fetches the current REST book at the deepest available level.
// Implementations must enforce DefaultMinInterval between calls across every
// caller sharing the client.
type RestClient interface {
	Snapshot(ctx context.Context, instrumentID string) (Snapshot, error)
}

// Client is an HTTP-backed RestClient shared across every adapter that
// talks to the same exchange, so the rate limiter state is centralized
// rather than duplicated per adapter.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Decode  func([]byte) (Snapshot, error)
	// PathFor builds the request path for a given instrument id. Defaults
	// to treating the instrument id as the path verbatim.
	PathFor func(instrumentID string) string

	limiter *rate.Limiter
}

// NewClient returns a Client rate-limited to one request per interval
// (DefaultMinInterval if interval <= 0).
func NewClient(baseURL string, decode func([]byte) (Snapshot, error), interval time.Duration) *Client {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	return &Client{
		HTTP:    &http.Client{Timeout: DefaultTimeout},
		BaseURL: baseURL,
		Decode:  decode,
		PathFor: func(instrumentID string) string { return instrumentID },
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// WithPath overrides how an instrument id is turned into a request path.
func (c *Client) WithPath(f func(instrumentID string) string) *Client {
	c.PathFor = f
	return c
}

// Snapshot fetches the path PathFor derives from instrumentID, waiting on
// the shared rate limiter first. The limiter's internal lock is only ever
// held across a time read and a token update; the HTTP round trip itself
// happens outside any lock.
func (c *Client) Snapshot(ctx context.Context, instrumentID string) (Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("rest: rate limit wait: %w", err)
	}

	path := c.PathFor(instrumentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rest: build request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rest: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rest: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("rest: %s returned %d: %s", path, resp.StatusCode, body)
	}
	return c.Decode(body)
}

// WithRetry retries fn up to attempts times with exponential backoff,
// surfacing the last error if every attempt fails. Used around Snapshot
// calls per §5's "request timeout and retried with backoff up to 5 times".
func WithRetry(ctx context.Context, attempts int, fn func(ctx context.Context) (Snapshot, error)) (Snapshot, error) {
	if attempts <= 0 {
		attempts = DefaultMaxRetries
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		snap, err := fn(ctx)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-time.After(backoffDelay(i)):
		}
	}
	return Snapshot{}, fmt.Errorf("rest: exhausted %d attempts: %w", attempts, lastErr)
}

func backoffDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
	const maxDelay = 10 * time.Second
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// DecodeGdaxBook decodes the Gdax PublicClient book shape:
// {sequence, bids:[[price,size,order_id]...], asks:[...]}.
func DecodeGdaxBook(instrumentID string) func([]byte) (Snapshot, error) {
	return func(body []byte) (Snapshot, error) {
		var wire struct {
			Sequence uint64     `json:"sequence"`
			Bids     [][3]string `json:"bids"`
			Asks     [][3]string `json:"asks"`
		}
		if err := sonic.Unmarshal(body, &wire); err != nil {
			return Snapshot{}, fmt.Errorf("rest: decode gdax book: %w", err)
		}
		orders := make([]order.Order, 0, len(wire.Bids)+len(wire.Asks))
		for _, b := range wire.Bids {
			o, err := rowToOrder(b, order.Buy)
			if err != nil {
				return Snapshot{}, err
			}
			orders = append(orders, o)
		}
		for _, a := range wire.Asks {
			o, err := rowToOrder(a, order.Sell)
			if err != nil {
				return Snapshot{}, err
			}
			orders = append(orders, o)
		}
		return Snapshot{Sequence: wire.Sequence, Orders: orders}, nil
	}
}

func rowToOrder(row [3]string, side order.Side) (order.Order, error) {
	var o order.Order
	o.Side = side
	o.ID = row[2]
	var err error
	if o.Price, err = convert.StringToDecimal(row[0]); err != nil {
		return o, err
	}
	if o.Size, err = convert.StringToDecimal(row[1]); err != nil {
		return o, err
	}
	return o, nil
}
