package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/l3bookd/exchanges/order"
	"github.com/thrasher-corp/l3bookd/exchanges/orderbook"
	"github.com/thrasher-corp/l3bookd/log"
	"github.com/thrasher-corp/l3bookd/rest"
	"github.com/thrasher-corp/l3bookd/stream"
)

// Kind is the normalized mutation an Update asks the book to perform,
// mirroring the add/remove/match/change algebra in §4.2 plus the two
// whole-book operations (Reset, Checksum) the Bitfinex and Bittrex variants
// need.
type Kind int

const (
	KindAdd Kind = iota
	KindRemove
	KindMatch
	KindChange
	KindReset
	KindChecksum
)

// Update is the normalized form of one decoded wire message, produced by a
// Protocol's Decode. Decode returns a slice, so a frame may carry several
// Updates; the gdax, bitfinex and bittrex variants each decode a frame into
// at most one (a whole snapshot frame becomes a single KindReset).
type Update struct {
	Kind        Kind
	Sequence    uint64
	HasSequence bool

	Side         order.Side
	Price        decimal.Decimal
	Size         decimal.Decimal
	OrderID      string
	MakerOrderID string

	ResetOrders []order.Order
	Checksum    uint32
}

// Protocol is what an exchange variant supplies to drive the shared state
// machine. Gdax sets RequiresBootstrap true; Bitfinex and Bittrex do not,
// since their snapshot and whole-book frames are self-contained.
type Protocol interface {
	Name() string
	URL() string
	SubscribePayloads(instrumentID string) []any
	Decode(msg stream.Message) ([]Update, error)
	RequiresBootstrap() bool
}

// ChecksumVerifier is implemented by protocols that validate book integrity
// out of band (Bitfinex's CRC32 "cs" frame). Protocols without one simply
// don't implement it; the machine type-asserts for it.
type ChecksumVerifier interface {
	VerifyChecksum(book *orderbook.Book, want uint32) error
}

// Publisher is the narrow boundary the machine publishes snapshots through.
type Publisher interface {
	Publish(snapshot orderbook.Snapshot)
}

// Machine drives one (exchange, instrument) pair through the state table in
// §4.4. One Machine owns one Book exclusively; nothing else may mutate it.
type Machine struct {
	Exchange     string
	InstrumentID string

	Transport stream.FeedTransport
	Rest      rest.RestClient
	Protocol  Protocol
	Publisher Publisher
	Log       log.Logger

	Backoff BackoffPolicy
	Book    *orderbook.Book

	state      State
	backoffN   int
	liveSince  time.Time
	pending    pendingBuffer
}

// New returns a Machine ready to Run. Logger may be nil (defaults to a
// no-op logger).
func New(exchange, instrumentID string, transport stream.FeedTransport, restClient rest.RestClient, proto Protocol, pub Publisher, logger log.Logger) *Machine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Machine{
		Exchange:     exchange,
		InstrumentID: instrumentID,
		Transport:    transport,
		Rest:         restClient,
		Protocol:     proto,
		Publisher:    pub,
		Log:          logger,
		Backoff:      DefaultBackoffPolicy,
		Book:         orderbook.New(exchange, instrumentID),
		state:        StateIdle,
	}
}

// State returns the machine's current state; useful for tests and the
// Supervisor's health reporting.
func (m *Machine) State() State { return m.state }

// ErrFatal wraps the error Run returns after recovering a panic. Connect
// failures and failed REST bootstraps are not fatal: Run moves to Backoff
// and retries them until ctx is canceled. The Supervisor logs a fatal error
// and, if every adapter is fatal, exits nonzero.
var ErrFatal = errors.New("adapter: fatal")

// frame carries one transport read result (or its terminal error) from the
// background reader goroutine to Run's main loop, mirroring the funnel
// goroutine / reader goroutine split the teacher uses for its websocket
// connections.
type frame struct {
	msg stream.Message
	err error
}

// Run drives the state machine until ctx is canceled or a fatal error
// occurs. It never panics out to the caller: a panic anywhere in the loop
// below is recovered here and turned into ErrFatal, so one adapter's
// failure cannot take down the process running several of them (§5
// failure isolation).
func (m *Machine) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = m.Transport.Close()
			m.Log.Errorf(m.Exchange, "%s %s panic: %v", m.Exchange, m.InstrumentID, r)
			err = fmt.Errorf("%w: %v", ErrFatal, r)
		}
	}()
	return m.run(ctx)
}

func (m *Machine) run(ctx context.Context) error {
	m.state = StateConnecting
	comms := make(chan frame, 64)
	readerDone := make(chan struct{})

	startReader := func() {
		go func() {
			defer close(readerDone)
			for {
				msg, err := m.Transport.Next(ctx)
				select {
				case comms <- frame{msg: msg, err: err}:
				case <-ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			_ = m.Transport.Close()
			return ctx.Err()
		default:
		}

		switch m.state {
		case StateConnecting:
			if err := m.Transport.Open(ctx, m.Protocol.URL(), m.Protocol.SubscribePayloads(m.InstrumentID)); err != nil {
				m.Log.Warnf(m.Exchange, "%s %s connect failed: %v", m.Exchange, m.InstrumentID, err)
				m.state = StateBackoff
				continue
			}
			comms = make(chan frame, 64)
			readerDone = make(chan struct{})
			startReader()
			m.pending.reset()
			if m.Protocol.RequiresBootstrap() {
				m.state = StateBootstrapping
			} else {
				m.state = StateLive
				m.liveSince = time.Now()
			}

		case StateBootstrapping, StateRecovering:
			if err := m.bootstrap(ctx, comms); err != nil {
				m.Log.Warnf(m.Exchange, "%s %s bootstrap failed: %v", m.Exchange, m.InstrumentID, err)
				m.state = StateBackoff
				continue
			}
			m.state = StateLive
			m.liveSince = time.Now()

		case StateLive:
			select {
			case <-ctx.Done():
				_ = m.Transport.Close()
				return ctx.Err()
			case f := <-comms:
				if f.err != nil {
					m.state = StateBackoff
					continue
				}
				if m.handleLiveMessage(f.msg) {
					m.state = StateRecovering
				}
			}

		case StateBackoff:
			_ = m.Transport.Close()
			if !m.liveSince.IsZero() && time.Since(m.liveSince) >= LiveIntervalToResetBackoff {
				m.backoffN = 0
			}
			m.liveSince = time.Time{}
			delay := m.Backoff.Delay(m.backoffN)
			m.backoffN++
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			m.state = StateConnecting

		case StateStopped:
			_ = m.Transport.Close()
			return nil
		}
	}
}

// Stop requests a clean shutdown; Run will observe it on its next loop
// iteration via ctx cancellation, which the Supervisor owns. Stop itself
// just marks the terminal state for State() callers that inspect it after
// ctx is already canceled.
func (m *Machine) Stop() { m.state = StateStopped }

// bootstrap implements §4.4's bootstrap protocol: buffer live updates that
// arrive while the REST snapshot is in flight, then drop anything at or
// before the snapshot's sequence and apply the rest in order, re-bootstrapping
// if a gap remains.
func (m *Machine) bootstrap(ctx context.Context, comms chan frame) error {
	drain := make(chan struct{})
	go func() {
		defer close(drain)
		for {
			select {
			case f, ok := <-comms:
				if !ok || f.err != nil {
					return
				}
				updates, err := m.Protocol.Decode(f.msg)
				if err != nil {
					continue
				}
				for _, u := range updates {
					m.pending.add(u)
				}
			case <-time.After(5 * time.Millisecond):
				return
			}
		}
	}()

	bootCtx, cancel := context.WithTimeout(ctx, rest.DefaultTimeout)
	defer cancel()
	snap, err := rest.WithRetry(bootCtx, rest.DefaultMaxRetries, func(c context.Context) (rest.Snapshot, error) {
		return m.Rest.Snapshot(c, m.InstrumentID)
	})
	<-drain
	if err != nil {
		return pkgerrors.Wrap(err, "rest snapshot")
	}

	m.Book.Reset(snap.Orders)
	m.Book.Sequence = snap.Sequence
	m.Publisher.Publish(m.Book.Snapshot(0, time.Now()))

	for _, u := range m.pending.sorted() {
		if !u.HasSequence {
			continue
		}
		if u.Sequence <= snap.Sequence {
			continue
		}
		if u.Sequence != snap.Sequence+1 {
			// gap still present after bootstrap; caller re-enters
			// Bootstrapping/Recovering to try again.
			m.pending.reset()
			return fmt.Errorf("adapter: gap persists after bootstrap: have %d want %d", snap.Sequence, u.Sequence)
		}
		if err := m.applyAndPublish(u); err != nil {
			m.pending.reset()
			return err
		}
		snap.Sequence = u.Sequence
	}
	m.pending.reset()
	return nil
}

// handleLiveMessage decodes and applies one transport message while Live.
// It returns true if the message revealed the book needs to recover
// (sequence gap, checksum mismatch, or crossed book).
func (m *Machine) handleLiveMessage(msg stream.Message) (needsRecovery bool) {
	updates, err := m.Protocol.Decode(msg)
	if err != nil {
		m.Log.Debugf(m.Exchange, "%s %s decode error, skipping frame: %v", m.Exchange, m.InstrumentID, err)
		return false
	}
	for _, u := range updates {
		if u.Kind == KindReset {
			m.Book.Reset(u.ResetOrders)
			m.Book.Sequence++
			m.Publisher.Publish(m.Book.Snapshot(0, time.Now()))
			continue
		}
		if u.Kind == KindChecksum {
			verifier, ok := m.Protocol.(ChecksumVerifier)
			if !ok {
				continue
			}
			if err := verifier.VerifyChecksum(m.Book, u.Checksum); err != nil {
				m.Log.Warnf(m.Exchange, "%s %s checksum mismatch: %v", m.Exchange, m.InstrumentID, err)
				return true
			}
			continue
		}
		if u.HasSequence {
			if u.Sequence <= m.Book.Sequence {
				continue // replay / out-of-order: discard
			}
			if u.Sequence > m.Book.Sequence+1 {
				m.Log.Warnf(m.Exchange, "%s %s sequence gap %d -> %d", m.Exchange, m.InstrumentID, m.Book.Sequence, u.Sequence)
				return true
			}
		}
		if err := m.applyAndPublish(u); err != nil {
			m.Log.Warnf(m.Exchange, "%s %s apply failed: %v", m.Exchange, m.InstrumentID, err)
			return true
		}
		if u.HasSequence {
			m.Book.Sequence = u.Sequence
		}
	}
	return false
}

// applyAndPublish mutates the book per u.Kind, checks for a cross, advances
// the book's sequence for a sequenced update, and publishes a snapshot.
// CrossedBook and SequenceMismatch are the two errors that demand a book
// reset per §4.2; UnknownOrder from a match is swallowed (logged here at
// debug) since a reference to an id we never saw is expected after a gap.
func (m *Machine) applyAndPublish(u Update) error {
	switch u.Kind {
	case KindAdd:
		if err := m.Book.Add(order.Order{ID: u.OrderID, Side: u.Side, Price: u.Price, Size: u.Size}); err != nil {
			return err
		}
	case KindRemove:
		m.Book.Remove(u.Side, u.Price, u.OrderID)
	case KindChange:
		m.Book.Change(u.Side, u.Price, u.OrderID, u.Size)
	case KindMatch:
		if err := m.Book.Match(u.Side, u.Price, u.MakerOrderID, u.Size); err != nil {
			if !errors.Is(err, orderbook.ErrUnknownOrder) {
				return err
			}
			m.Log.Debugf(m.Exchange, "%s %s ignoring match: %v", m.Exchange, m.InstrumentID, err)
		}
	}
	if err := m.Book.VerifyNotCrossed(); err != nil {
		return err
	}
	if u.HasSequence {
		m.Book.Sequence = u.Sequence
	}
	m.Publisher.Publish(m.Book.Snapshot(0, time.Now()))
	return nil
}
