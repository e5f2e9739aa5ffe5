package stream

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/thrasher-corp/l3bookd/log"
)

// WebsocketTransport is the gorilla/websocket-backed FeedTransport used by
// every adapter variant. It owns exactly one connection, sends a keepalive
// ping after KeepaliveInterval of send-silence, and surfaces disconnects as
// a terminal Next() error so the adapter drives reconnection rather than
// this package.
type WebsocketTransport struct {
	Name     string
	ProxyURL string
	Log      log.Logger

	conn      *websocket.Conn
	connected int32

	writeMu sync.Mutex
	lastTX  time.Time

	shutdown chan struct{}
	errs     chan error
	wg       sync.WaitGroup
}

// NewWebsocketTransport returns a transport identified by name (used only
// for log lines).
func NewWebsocketTransport(name string, logger log.Logger) *WebsocketTransport {
	if logger == nil {
		logger = log.Nop()
	}
	return &WebsocketTransport{Name: name, Log: logger}
}

// Open dials url and sends each subscribePayload as a JSON frame.
func (w *WebsocketTransport) Open(ctx context.Context, rawURL string, subscribePayloads []any) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	if w.ProxyURL != "" {
		proxy, err := url.Parse(w.ProxyURL)
		if err != nil {
			return fmt.Errorf("stream: invalid proxy url: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxy)
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("stream: dial %s: %s: %w", rawURL, resp.Status, err)
		}
		return fmt.Errorf("stream: dial %s: %w", rawURL, err)
	}

	w.conn = conn
	w.shutdown = make(chan struct{})
	w.errs = make(chan error, 1)
	atomic.StoreInt32(&w.connected, 1)
	w.setupPingHandler()

	for _, payload := range subscribePayloads {
		if err := w.SendJSON(payload); err != nil {
			_ = w.Close()
			return fmt.Errorf("stream: subscribe: %w", err)
		}
	}
	w.Log.Infof(w.Name, "websocket connected to %s", rawURL)
	return nil
}

// SendJSON writes data as a single JSON text frame.
func (w *WebsocketTransport) SendJSON(data any) error {
	if atomic.LoadInt32(&w.connected) != 1 {
		return ErrClosed
	}
	payload, err := sonic.Marshal(data)
	if err != nil {
		return fmt.Errorf("stream: marshal: %w", err)
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.lastTX = time.Now()
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

// setupPingHandler starts a background goroutine that sends a ping frame
// whenever KeepaliveInterval elapses without an outbound write.
func (w *WebsocketTransport) setupPingHandler() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(KeepaliveInterval / 3)
		defer ticker.Stop()
		for {
			select {
			case <-w.shutdown:
				return
			case <-ticker.C:
				w.writeMu.Lock()
				silence := time.Since(w.lastTX)
				w.writeMu.Unlock()
				if silence < KeepaliveInterval {
					continue
				}
				w.writeMu.Lock()
				w.lastTX = time.Now()
				err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				w.writeMu.Unlock()
				if err != nil {
					select {
					case w.errs <- fmt.Errorf("stream: keepalive ping: %w", err):
					default:
					}
					return
				}
			}
		}
	}()
}

// Next blocks for the next decoded message.
func (w *WebsocketTransport) Next(ctx context.Context) (Message, error) {
	if atomic.LoadInt32(&w.connected) != 1 {
		return Message{}, ErrClosed
	}

	type result struct {
		msg Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		mType, raw, err := w.conn.ReadMessage()
		if err != nil {
			done <- result{err: err}
			return
		}
		if mType == websocket.BinaryMessage {
			raw, err = decompress(raw)
			if err != nil {
				done <- result{err: fmt.Errorf("stream: decompress: %w", err)}
				return
			}
		}
		done <- result{msg: Message{Raw: raw, ReceivedAt: time.Now()}}
	}()

	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case err := <-w.errs:
		atomic.StoreInt32(&w.connected, 0)
		return Message{}, fmt.Errorf("%w: %w", ErrClosed, err)
	case r := <-done:
		if r.err != nil {
			atomic.StoreInt32(&w.connected, 0)
			if isDisconnect(r.err) {
				return Message{}, fmt.Errorf("%w: %w", ErrClosed, r.err)
			}
			return Message{}, r.err
		}
		return r.msg, nil
	}
}

// Close is idempotent.
func (w *WebsocketTransport) Close() error {
	if atomic.SwapInt32(&w.connected, 0) == 0 {
		return nil
	}
	close(w.shutdown)
	w.wg.Wait()
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

func isDisconnect(err error) bool {
	if errors.Is(err, io.EOF) || websocket.IsUnexpectedCloseError(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// decompress handles gzip- and flate-compressed binary frames, the two
// formats exchanges commonly use for high-volume book channels.
func decompress(resp []byte) ([]byte, error) {
	if len(resp) >= 2 && resp[0] == 0x1f && resp[1] == 0x8b {
		r, err := gzip.NewReader(bytes.NewReader(resp))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	r := flate.NewReader(bytes.NewReader(resp))
	defer r.Close()
	return io.ReadAll(r)
}
