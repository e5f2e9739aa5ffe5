package publisher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrasher-corp/l3bookd/exchanges/orderbook"
)

type recordingSubscriber struct {
	mu   sync.Mutex
	seen []uint64
}

func (r *recordingSubscriber) Deliver(snapshot orderbook.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, snapshot.Sequence)
}

func (r *recordingSubscriber) sequences() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.seen))
	copy(out, r.seen)
	return out
}

func snap(seq uint64) orderbook.Snapshot {
	return orderbook.Snapshot{Exchange: "gdax", InstrumentID: "BTC-USD", Sequence: seq}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	p := New(nil)
	sub := &recordingSubscriber{}
	p.Subscribe(sub, Lossy)

	p.Publish(snap(1))
	require.Eventually(t, func() bool { return len(sub.sequences()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []uint64{1}, sub.sequences())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	p := New(nil)
	sub := &recordingSubscriber{}
	id := p.Subscribe(sub, Lossy)
	p.Unsubscribe(id)

	p.Publish(snap(1))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sub.sequences())
}

type blockingSubscriber struct {
	release chan struct{}
	delivered chan uint64
}

func (b *blockingSubscriber) Deliver(snapshot orderbook.Snapshot) {
	<-b.release
	b.delivered <- snapshot.Sequence
}

func TestLossyPolicyDropsOldestWhenFull(t *testing.T) {
	p := New(nil)
	sub := &blockingSubscriber{release: make(chan struct{}), delivered: make(chan uint64, MailboxCapacity+4)}
	p.Subscribe(sub, Lossy)

	for i := 0; i < MailboxCapacity+2; i++ {
		p.Publish(snap(uint64(i)))
	}
	close(sub.release)

	var got []uint64
	require.Eventually(t, func() bool {
		for {
			select {
			case v := <-sub.delivered:
				got = append(got, v)
			default:
				return len(got) == MailboxCapacity+1
			}
		}
	}, time.Second, time.Millisecond)
}

func TestLosslessPolicyUnsubscribesAfterStrikeLimit(t *testing.T) {
	p := New(nil)
	sub := &blockingSubscriber{release: make(chan struct{}), delivered: make(chan uint64, 1)}
	id := p.Subscribe(sub, Lossless)

	// Fill the mailbox so every subsequent publish must block on the send
	// itself (the one in flight inside drain holds the subscriber's only
	// goroutine hostage on Deliver).
	for i := 0; i < MailboxCapacity+LosslessStrikeLimit+1; i++ {
		p.Publish(snap(uint64(i)))
	}

	p.mu.RLock()
	_, stillSubscribed := p.subs[id]
	p.mu.RUnlock()
	assert.False(t, stillSubscribed)
	close(sub.release)
}
