// Package database provides batched SQL persistence of alert events and burst
// findings (PostgreSQL or SQLite) and address label lookups.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hervehildenbrand/alert-radar/pkg/models"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	batchSize     = 50
	batchInterval = 2 * time.Second
	queueSize     = 10000
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS alert_events (
		run_id         TEXT NOT NULL,
		ts_raw         TEXT NOT NULL,
		ts_absolute    TIMESTAMP NOT NULL,
		message        TEXT NOT NULL,
		classification TEXT,
		priority       INTEGER,
		protocol       TEXT NOT NULL,
		src_addr       TEXT NOT NULL,
		src_port       INTEGER,
		dst_addr       TEXT NOT NULL,
		dst_port       INTEGER,
		gid            BIGINT,
		sid            BIGINT,
		rev            BIGINT,
		raw_line       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alert_bursts (
		run_id          TEXT NOT NULL,
		src_addr        TEXT NOT NULL,
		count           INTEGER NOT NULL,
		window_seconds  INTEGER NOT NULL,
		window_start_ts TEXT NOT NULL,
		window_end_ts   TEXT NOT NULL,
		detected_at     TIMESTAMP NOT NULL
	)`,
}

const (
	insertEventSQL = `INSERT INTO alert_events (
		run_id, ts_raw, ts_absolute, message, classification, priority, protocol,
		src_addr, src_port, dst_addr, dst_port, gid, sid, rev, raw_line
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertBurstSQL = `INSERT INTO alert_bursts (
		run_id, src_addr, count, window_seconds, window_start_ts, window_end_ts, detected_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, url string) (*sql.DB, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the alert tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// record is one queued row: exactly one of event or burst is set.
type record struct {
	event *models.Event
	burst *models.Burst
}

// EventWriter batches events and bursts into the database. Every row is
// tagged with the writer's run ID.
type EventWriter struct {
	db     *sql.DB
	runID  string
	logger *zap.Logger

	queue   chan record
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	// Stats, owned by the writer loop until Stop returns.
	eventsWritten  uint64
	burstsWritten  uint64
	batchesWritten uint64
	err            error
}

// NewEventWriter creates a writer for db with a fresh run ID.
func NewEventWriter(db *sql.DB, logger *zap.Logger) *EventWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventWriter{
		db:     db,
		runID:  uuid.NewString(),
		logger: logger,
		queue:  make(chan record, queueSize),
		done:   make(chan struct{}),
	}
}

// RunID returns the identifier stamped on every row of this run.
func (w *EventWriter) RunID() string {
	return w.runID
}

// Start begins the background writer goroutine.
func (w *EventWriter) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.writerLoop()
	w.logger.Debug("database writer started", zap.String("run_id", w.runID))
}

// Stop flushes queued rows and waits for the writer to finish. It returns the
// first batch failure, if any. The database handle is left open.
func (w *EventWriter) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.err
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	w.logger.Info("database writer stopped",
		zap.String("run_id", w.runID),
		zap.Uint64("events", w.eventsWritten),
		zap.Uint64("bursts", w.burstsWritten),
		zap.Uint64("batches", w.batchesWritten))
	return w.err
}

// WriteEvent queues an event, blocking while the queue is full.
func (w *EventWriter) WriteEvent(e models.Event) error {
	return w.enqueue(record{event: &e})
}

// WriteBurst queues a burst finding, blocking while the queue is full.
func (w *EventWriter) WriteBurst(b models.Burst) error {
	return w.enqueue(record{burst: &b})
}

var errWriterStopped = errors.New("database writer stopped")

func (w *EventWriter) enqueue(r record) error {
	select {
	case <-w.done:
		return errWriterStopped
	default:
	}
	select {
	case w.queue <- r:
		return nil
	case <-w.done:
		return errWriterStopped
	}
}

// Stats returns writer statistics. Only stable after Stop.
func (w *EventWriter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"run_id":          w.runID,
		"events_written":  w.eventsWritten,
		"bursts_written":  w.burstsWritten,
		"batches_written": w.batchesWritten,
		"queue_len":       len(w.queue),
		"queue_cap":       cap(w.queue),
	}
}

func (w *EventWriter) writerLoop() {
	defer w.wg.Done()

	batch := make([]record, 0, batchSize)
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case r := <-w.queue:
			batch = append(batch, r)
			if len(batch) >= batchSize {
				w.writeBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.writeBatch(batch)
				batch = batch[:0]
			}

		case <-w.done:
			// Writers stop enqueueing once done is closed.
			for len(w.queue) > 0 {
				batch = append(batch, <-w.queue)
				if len(batch) >= batchSize {
					w.writeBatch(batch)
					batch = batch[:0]
				}
			}
			if len(batch) > 0 {
				w.writeBatch(batch)
			}
			return
		}
	}
}

func (w *EventWriter) writeBatch(batch []record) {
	if len(batch) == 0 {
		return
	}

	if err := w.execBatch(batch); err != nil {
		w.logger.Error("failed to write batch", zap.Int("rows", len(batch)), zap.Error(err))
		if w.err == nil {
			w.err = err
		}
	}
}

func (w *EventWriter) execBatch(batch []record) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var events, bursts uint64
	for _, r := range batch {
		switch {
		case r.event != nil:
			if _, err := tx.Exec(insertEventSQL, eventArgs(w.runID, *r.event)...); err != nil {
				return fmt.Errorf("insert event: %w", err)
			}
			events++
		case r.burst != nil:
			if _, err := tx.Exec(insertBurstSQL, burstArgs(w.runID, *r.burst, time.Now())...); err != nil {
				return fmt.Errorf("insert burst: %w", err)
			}
			bursts++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	w.eventsWritten += events
	w.burstsWritten += bursts
	w.batchesWritten++
	return nil
}

func eventArgs(runID string, e models.Event) []interface{} {
	var gid, sid, rev interface{}
	if e.Signature != nil {
		gid, sid, rev = int64(e.Signature.GID), int64(e.Signature.SID), int64(e.Signature.Rev)
	}
	return []interface{}{
		runID,
		e.TsRaw,
		e.TsAbsolute,
		e.Message,
		nullString(e.Classification),
		nullInt(e.Priority),
		e.Protocol,
		e.Src.Addr,
		nullInt(e.Src.Port),
		e.Dst.Addr,
		nullInt(e.Dst.Port),
		gid,
		sid,
		rev,
		e.RawLine,
	}
}

func burstArgs(runID string, b models.Burst, detectedAt time.Time) []interface{} {
	return []interface{}{
		runID,
		b.SrcAddr,
		b.Count,
		b.WindowSeconds,
		b.WindowStartTs,
		b.WindowEndTs,
		detectedAt,
	}
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}
