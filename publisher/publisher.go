// Package publisher implements the fan-out boundary (C6/C7) between book
// reconstruction and downstream consumers: one Publisher shared by every
// adapter it is handed to, delivering every Snapshot to each subscribed
// SubscriberPort through a bounded per-subscriber mailbox.
package publisher

import (
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/thrasher-corp/l3bookd/exchanges/orderbook"
	"github.com/thrasher-corp/l3bookd/log"
)

// MailboxCapacity is the number of buffered snapshots a subscriber may lag
// behind the publisher before its backpressure policy kicks in.
const MailboxCapacity = 16

// LosslessSendTimeout is how long a lossless subscriber's mailbox send may
// block before counting as a strike.
const LosslessSendTimeout = 50 * time.Millisecond

// LosslessStrikeLimit is how many consecutive timed-out sends a lossless
// subscriber tolerates before being force-unsubscribed.
const LosslessStrikeLimit = 3

// Policy selects how a subscriber's mailbox behaves once it is full.
type Policy int

const (
	// Lossy drops the oldest buffered snapshot to make room for the new
	// one; the subscriber never blocks the publisher.
	Lossy Policy = iota
	// Lossless blocks the publish for up to LosslessSendTimeout; after
	// LosslessStrikeLimit consecutive timeouts the subscriber is
	// force-unsubscribed rather than stalling every other subscriber
	// indefinitely.
	Lossless
)

// SubscriberPort is what a downstream consumer implements to receive book
// snapshots. Deliver must not block for long: the mailbox goroutine below
// is the only thing standing between a slow Deliver and a stalled
// publisher under the Lossless policy.
type SubscriberPort interface {
	Deliver(snapshot orderbook.Snapshot)
}

type subscriber struct {
	id     string
	policy Policy
	port   SubscriberPort
	mail   chan orderbook.Snapshot
	strikes int
	done   chan struct{}
}

// Publisher fans snapshots from every adapter wired to it out to every
// current subscriber. Subscribe and Unsubscribe are safe to call
// concurrently with Publish.
type Publisher struct {
	Log log.Logger

	mu   sync.RWMutex
	subs map[string]*subscriber
}

// New returns an empty Publisher.
func New(logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Publisher{Log: logger, subs: make(map[string]*subscriber)}
}

// Subscribe registers port under the given backpressure policy and starts
// its mailbox goroutine. The returned id is used to Unsubscribe later.
func (p *Publisher) Subscribe(port SubscriberPort, policy Policy) string {
	id := uuid.Must(uuid.NewV4()).String()
	sub := &subscriber{
		id:     id,
		policy: policy,
		port:   port,
		mail:   make(chan orderbook.Snapshot, MailboxCapacity),
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	p.subs[id] = sub
	p.mu.Unlock()

	go p.drain(sub)
	return id
}

// Unsubscribe stops delivering to id and releases its mailbox goroutine.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	sub, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
	}
	p.mu.Unlock()
	if ok {
		close(sub.done)
	}
}

// Publish delivers snapshot to every current subscriber according to its
// policy. A Lossy subscriber whose mailbox is full has its oldest buffered
// snapshot dropped; a Lossless subscriber blocks the send for up to
// LosslessSendTimeout before counting a strike, and is force-unsubscribed
// after LosslessStrikeLimit consecutive strikes.
func (p *Publisher) Publish(snapshot orderbook.Snapshot) {
	p.mu.RLock()
	targets := make([]*subscriber, 0, len(p.subs))
	for _, s := range p.subs {
		targets = append(targets, s)
	}
	p.mu.RUnlock()

	for _, sub := range targets {
		switch sub.policy {
		case Lossy:
			p.publishLossy(sub, snapshot)
		case Lossless:
			p.publishLossless(sub, snapshot)
		}
	}
}

func (p *Publisher) publishLossy(sub *subscriber, snapshot orderbook.Snapshot) {
	select {
	case sub.mail <- snapshot:
		return
	default:
	}
	select {
	case <-sub.mail:
	default:
	}
	select {
	case sub.mail <- snapshot:
	default:
	}
}

func (p *Publisher) publishLossless(sub *subscriber, snapshot orderbook.Snapshot) {
	select {
	case sub.mail <- snapshot:
		sub.strikes = 0
		return
	case <-time.After(LosslessSendTimeout):
	}
	sub.strikes++
	p.Log.Warnf("publisher", "subscriber %s missed delivery (strike %d/%d)", sub.id, sub.strikes, LosslessStrikeLimit)
	if sub.strikes >= LosslessStrikeLimit {
		p.Log.Warnf("publisher", "subscriber %s exceeded strike limit, unsubscribing", sub.id)
		p.Unsubscribe(sub.id)
	}
}

// drain is the mailbox goroutine: it hands each buffered snapshot to
// Deliver serially, so a slow subscriber only ever affects its own
// mailbox, never another subscriber's delivery order.
func (p *Publisher) drain(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case snap := <-sub.mail:
			sub.port.Deliver(snap)
		}
	}
}
