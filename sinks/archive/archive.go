// Package archive implements a SubscriberPort that appends every snapshot
// it receives to a msgpack-framed file, supplementing the distillation's
// in-memory publisher with the durable persistence the original
// implementation's persisting actor provided.
package archive

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/thrasher-corp/l3bookd/exchanges/orderbook"
)

// record is the on-disk shape of one archived snapshot.
type record struct {
	Exchange     string                `msgpack:"exchange"`
	InstrumentID string                `msgpack:"instrument_id"`
	Sequence     uint64                `msgpack:"sequence"`
	ProducedAt   int64                 `msgpack:"produced_at_unix_nano"`
	Bids         []orderbook.LevelView `msgpack:"bids"`
	Asks         []orderbook.LevelView `msgpack:"asks"`
}

// Sink appends msgpack-encoded, length-prefixed records to a file. One
// Sink is safe for concurrent Deliver calls; writes are serialized under
// mu so frames are never interleaved.
type Sink struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// Open appends to (creating if absent) the file at path.
func Open(path string) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	return &Sink{w: f}, nil
}

// Deliver implements publisher.SubscriberPort. Encoding errors and write
// failures are logged by the caller's wrapper, if any; Deliver itself
// swallows them rather than propagating, since publisher.Publisher has no
// error channel back to the adapter — a dead archive sink must never stall
// book reconstruction.
func (s *Sink) Deliver(snapshot orderbook.Snapshot) {
	rec := record{
		Exchange:     snapshot.Exchange,
		InstrumentID: snapshot.InstrumentID,
		Sequence:     snapshot.Sequence,
		ProducedAt:   snapshot.ProducedAt.UnixNano(),
		Bids:         snapshot.Bids,
		Asks:         snapshot.Asks,
	}
	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(payload)))
	if _, err := s.w.Write(lenPrefix[:]); err != nil {
		return
	}
	_, _ = s.w.Write(payload)
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

// ReadAll decodes every length-prefixed msgpack record from r, in archive
// order. Used by tests and any offline replay tooling.
func ReadAll(r io.Reader) ([]orderbook.Snapshot, error) {
	var out []orderbook.Snapshot
	for {
		var lenPrefix [4]byte
		if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, fmt.Errorf("archive: read length prefix: %w", err)
		}
		n := binary.BigEndian.Uint32(lenPrefix[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return out, fmt.Errorf("archive: read record: %w", err)
		}
		var rec record
		if err := msgpack.Unmarshal(buf, &rec); err != nil {
			return out, fmt.Errorf("archive: decode record: %w", err)
		}
		out = append(out, orderbook.Snapshot{
			Exchange:     rec.Exchange,
			InstrumentID: rec.InstrumentID,
			Sequence:     rec.Sequence,
			Bids:         rec.Bids,
			Asks:         rec.Asks,
			ProducedAt:   time.Unix(0, rec.ProducedAt),
		})
	}
}
