// Package sqlsink persists snapshots to a relational database, the Go
// equivalent of the original implementation's MySQL-backed persisting
// actor: one book_snapshots row per delivery (exchange and instrument are
// columns) plus one book_levels row per resting order, in tables created
// (and migrated) up front with goose.
package sqlsink

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/thrasher-corp/goose"

	"github.com/thrasher-corp/l3bookd/exchanges/orderbook"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Sink writes snapshots into the book_snapshots / book_levels tables via a
// plain database/sql connection, shared across every Machine configured to
// persist.
type Sink struct {
	db *sql.DB

	insertSnapshot *sql.Stmt
	insertLevel    *sql.Stmt
}

// Open connects to driver/dsn (e.g. "postgres" + a libpq DSN, or "sqlite3"
// + a file path), runs pending goose migrations, and prepares the insert
// statements Deliver uses.
func Open(driver, dsn string) (*Sink, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlsink: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sqlsink: ping: %w", err)
	}

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("sqlsink: dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("sqlsink: migrate: %w", err)
	}

	insertSnapshot, err := db.Prepare(`INSERT INTO book_snapshots (exchange, instrument_id, sequence, produced_at) VALUES ($1, $2, $3, $4) RETURNING id`)
	if err != nil {
		return nil, fmt.Errorf("sqlsink: prepare snapshot insert: %w", err)
	}
	insertLevel, err := db.Prepare(`INSERT INTO book_levels (snapshot_id, side, price, size, order_id) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return nil, fmt.Errorf("sqlsink: prepare level insert: %w", err)
	}

	return &Sink{db: db, insertSnapshot: insertSnapshot, insertLevel: insertLevel}, nil
}

// Deliver implements publisher.SubscriberPort, persisting one snapshot as
// a parent row plus one child row per resting order across both sides.
// Errors are not propagated: a sink outage must never stall the publisher
// that every other subscriber also depends on.
func (s *Sink) Deliver(snapshot orderbook.Snapshot) {
	tx, err := s.db.Begin()
	if err != nil {
		return
	}
	defer tx.Rollback()

	var snapshotID int64
	row := tx.Stmt(s.insertSnapshot).QueryRow(snapshot.Exchange, snapshot.InstrumentID, snapshot.Sequence, snapshot.ProducedAt)
	if err := row.Scan(&snapshotID); err != nil {
		return
	}

	level := tx.Stmt(s.insertLevel)
	for _, b := range snapshot.Bids {
		if _, err := level.Exec(snapshotID, "buy", b.Price.String(), b.Size.String(), b.OrderID); err != nil {
			return
		}
	}
	for _, a := range snapshot.Asks {
		if _, err := level.Exec(snapshotID, "sell", a.Price.String(), a.Size.String(), a.OrderID); err != nil {
			return
		}
	}
	_ = tx.Commit()
}

// Close releases the prepared statements and underlying connection pool.
func (s *Sink) Close() error {
	s.insertSnapshot.Close()
	s.insertLevel.Close()
	return s.db.Close()
}
