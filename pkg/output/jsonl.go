// Package output writes events and burst findings as newline-delimited JSON.
package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hervehildenbrand/alert-radar/pkg/models"
)

// eventRecord is the on-disk shape of an event. ts_absolute is rendered
// without a zone offset when the event was parsed without a time zone.
type eventRecord struct {
	models.Event
	TsAbsolute string `json:"ts_absolute"`
	Severity   string `json:"severity"`
}

// JSONLWriter writes one JSON object per line.
type JSONLWriter struct {
	w     *bufio.Writer
	enc   *json.Encoder
	close func() error
	naive bool
	sev   func(*int) string
	count int
}

// NewJSONLWriter wraps w. When naive is true timestamps are written without a
// zone. severity may be nil, in which case the field is left empty.
func NewJSONLWriter(w io.Writer, naive bool, severity func(*int) string) *JSONLWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{
		w:     bw,
		enc:   enc,
		close: func() error { return nil },
		naive: naive,
		sev:   severity,
	}
}

// CreateJSONL creates (or truncates) path and returns a writer for it.
func CreateJSONL(path string, naive bool, severity func(*int) string) (*JSONLWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	jw := NewJSONLWriter(f, naive, severity)
	jw.close = f.Close
	return jw, nil
}

// WriteEvent writes a single event.
func (j *JSONLWriter) WriteEvent(e models.Event) error {
	rec := eventRecord{Event: e, TsAbsolute: j.formatTime(e.TsAbsolute)}
	if j.sev != nil {
		rec.Severity = j.sev(e.Priority)
	}
	if err := j.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	j.count++
	return nil
}

// WriteEvents writes all events.
func (j *JSONLWriter) WriteEvents(events []models.Event) error {
	for _, e := range events {
		if err := j.WriteEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteBursts writes all findings.
func (j *JSONLWriter) WriteBursts(bursts []models.Burst) error {
	for _, b := range bursts {
		if err := j.enc.Encode(b); err != nil {
			return fmt.Errorf("encode burst: %w", err)
		}
		j.count++
	}
	return nil
}

// Count returns the number of records written.
func (j *JSONLWriter) Count() int {
	return j.count
}

// Close flushes buffered records and closes the underlying file, if any.
func (j *JSONLWriter) Close() error {
	if err := j.w.Flush(); err != nil {
		j.close()
		return fmt.Errorf("flush: %w", err)
	}
	return j.close()
}

func (j *JSONLWriter) formatTime(t time.Time) string {
	if j.naive {
		return t.Format("2006-01-02T15:04:05.000000")
	}
	return t.Format(time.RFC3339Nano)
}
