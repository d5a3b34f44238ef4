// Package detector provides alert burst detection.
package detector

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hervehildenbrand/alert-radar/pkg/models"
)

// ErrInvalidConfig is returned for a threshold below 1 or a window that is
// negative or too long to represent as a time.Duration.
var ErrInvalidConfig = errors.New("invalid burst detector configuration")

// MaxWindowSeconds is the longest window a time.Duration can hold.
const MaxWindowSeconds = math.MaxInt64 / int64(time.Second)

// BurstConfig configures a BurstDetector.
type BurstConfig struct {
	// Threshold is the minimum number of events in the window. 1 fires on
	// every event; callers should use 2 or more.
	Threshold int
	// WindowSeconds is the trailing window length. 0 only counts events with
	// the same timestamp as the newest one.
	WindowSeconds int
}

// Validate checks the configuration.
func (c BurstConfig) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("%w: threshold %d < 1", ErrInvalidConfig, c.Threshold)
	}
	if c.WindowSeconds < 0 {
		return fmt.Errorf("%w: window %ds < 0", ErrInvalidConfig, c.WindowSeconds)
	}
	if int64(c.WindowSeconds) > MaxWindowSeconds {
		return fmt.Errorf("%w: window %ds > %ds", ErrInvalidConfig, c.WindowSeconds, MaxWindowSeconds)
	}
	return nil
}

// BurstDetector flags source addresses that raise at least Threshold alerts
// within a trailing window of WindowSeconds.
type BurstDetector struct {
	cfg    BurstConfig
	window time.Duration
}

// NewBurstDetector creates a detector, failing fast on a bad configuration.
func NewBurstDetector(cfg BurstConfig) (*BurstDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BurstDetector{
		cfg:    cfg,
		window: time.Duration(cfg.WindowSeconds) * time.Second,
	}, nil
}

// Detect scans events in time order and returns findings in the order they
// fired. The input does not need to be sorted and is not modified.
//
// Once a burst fires for an address its window is cleared, so a sustained
// flood yields one finding per Threshold further events rather than one per
// event. Overlapping bursts are undercounted as a result.
func (d *BurstDetector) Detect(events []models.Event) []models.Burst {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]*models.Event, len(events))
	for i := range events {
		sorted[i] = &events[i]
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.TsAbsolute.Equal(b.TsAbsolute) {
			return a.TsAbsolute.Before(b.TsAbsolute)
		}
		if a.Src.Addr != b.Src.Addr {
			return a.Src.Addr < b.Src.Addr
		}
		return a.RawLine < b.RawLine
	})

	scan := newBurstScan(d.cfg, d.window)
	for _, e := range sorted {
		scan.process(e)
	}
	return scan.findings
}

// DetectBursts validates the parameters and runs a one-off detection.
func DetectBursts(events []models.Event, threshold, windowSeconds int) ([]models.Burst, error) {
	d, err := NewBurstDetector(BurstConfig{Threshold: threshold, WindowSeconds: windowSeconds})
	if err != nil {
		return nil, err
	}
	return d.Detect(events), nil
}

// burstScan holds the per-address windows of a single Detect call.
type burstScan struct {
	cfg      BurstConfig
	window   time.Duration
	queues   map[string]*eventQueue
	findings []models.Burst
}

func newBurstScan(cfg BurstConfig, window time.Duration) *burstScan {
	return &burstScan{
		cfg:    cfg,
		window: window,
		queues: make(map[string]*eventQueue),
	}
}

func (s *burstScan) process(e *models.Event) {
	q, ok := s.queues[e.Src.Addr]
	if !ok {
		q = &eventQueue{}
		s.queues[e.Src.Addr] = q
	}
	q.push(e)

	// Window is (newest - window, newest].
	cutoff := e.TsAbsolute.Add(-s.window)
	for q.len() > 0 && q.front().TsAbsolute.Before(cutoff) {
		q.pop()
	}

	if q.len() < s.cfg.Threshold {
		return
	}

	s.findings = append(s.findings, models.Burst{
		SrcAddr:       e.Src.Addr,
		Count:         q.len(),
		WindowSeconds: s.cfg.WindowSeconds,
		WindowStartTs: q.front().TsRaw,
		WindowEndTs:   q.back().TsRaw,
	})
	q.clear()
}

// eventQueue is a FIFO of events ordered by time.
type eventQueue struct {
	items []*models.Event
	head  int
}

func (q *eventQueue) push(e *models.Event) { q.items = append(q.items, e) }
func (q *eventQueue) len() int             { return len(q.items) - q.head }
func (q *eventQueue) front() *models.Event { return q.items[q.head] }
func (q *eventQueue) back() *models.Event  { return q.items[len(q.items)-1] }

func (q *eventQueue) pop() {
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
}

func (q *eventQueue) clear() {
	for i := range q.items {
		q.items[i] = nil
	}
	q.items = q.items[:0]
	q.head = 0
}
