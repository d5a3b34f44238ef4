package detector

import (
	"math/rand"
	"testing"
	"time"

	"github.com/hervehildenbrand/alert-radar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 12, 25, 10, 0, 0, 0, time.UTC)

func evt(addr string, offsetSeconds int) models.Event {
	ts := base.Add(time.Duration(offsetSeconds) * time.Second)
	raw := ts.Format("01/02-15:04:05.000000")
	return models.Event{
		TsRaw:      raw,
		TsAbsolute: ts,
		Message:    "test",
		Protocol:   "TCP",
		Src:        models.Endpoint{Addr: addr},
		Dst:        models.Endpoint{Addr: "10.0.0.1"},
		RawLine:    raw + " " + addr,
	}
}

func TestBurstDetector_FindsBurst(t *testing.T) {
	events := []models.Event{
		evt("1.1.1.1", 0),
		evt("1.1.1.1", 30),
		evt("1.1.1.1", 60),
		evt("2.2.2.2", 70),
		evt("1.1.1.1", 90),
		evt("1.1.1.1", 120),
	}

	findings, err := DetectBursts(events, 5, 300)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	f := findings[0]
	assert.Equal(t, "1.1.1.1", f.SrcAddr)
	assert.Equal(t, 5, f.Count)
	assert.Equal(t, 300, f.WindowSeconds)
	assert.Equal(t, "12/25-10:00:00.000000", f.WindowStartTs)
	assert.Equal(t, "12/25-10:02:00.000000", f.WindowEndTs)
}

func TestBurstDetector_NoBurstOutsideWindow(t *testing.T) {
	events := []models.Event{
		evt("1.1.1.1", 0),
		evt("1.1.1.1", 400),
		evt("1.1.1.1", 800),
		evt("1.1.1.1", 1200),
		evt("1.1.1.1", 1600),
	}

	findings, err := DetectBursts(events, 3, 300)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestBurstDetector_ClearsAfterFiring(t *testing.T) {
	tests := []struct {
		n, threshold int
	}{
		{10, 5},
		{11, 5},
		{9, 5},
		{7, 2},
		{3, 3},
		{2, 3},
	}

	for _, tt := range tests {
		events := make([]models.Event, tt.n)
		for i := range events {
			events[i] = evt("10.1.1.1", i)
		}

		findings, err := DetectBursts(events, tt.threshold, 3600)
		require.NoError(t, err)
		assert.Len(t, findings, tt.n/tt.threshold, "n=%d threshold=%d", tt.n, tt.threshold)
		for _, f := range findings {
			assert.Equal(t, tt.threshold, f.Count)
		}
	}
}

func TestBurstDetector_SecondBurstStartsAfterClear(t *testing.T) {
	events := make([]models.Event, 6)
	for i := range events {
		events[i] = evt("10.1.1.1", i*10)
	}

	findings, err := DetectBursts(events, 3, 300)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "12/25-10:00:00.000000", findings[0].WindowStartTs)
	assert.Equal(t, "12/25-10:00:20.000000", findings[0].WindowEndTs)
	assert.Equal(t, "12/25-10:00:30.000000", findings[1].WindowStartTs)
	assert.Equal(t, "12/25-10:00:50.000000", findings[1].WindowEndTs)
}

func TestBurstDetector_OrderInsensitive(t *testing.T) {
	var events []models.Event
	addrs := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}
	for i := 0; i < 60; i++ {
		events = append(events, evt(addrs[i%len(addrs)], i*7))
	}

	d, err := NewBurstDetector(BurstConfig{Threshold: 4, WindowSeconds: 90})
	require.NoError(t, err)
	want := d.Detect(events)
	require.NotEmpty(t, want)

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 10; round++ {
		shuffled := append([]models.Event(nil), events...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, d.Detect(shuffled), "round %d", round)
	}
}

func TestBurstDetector_DoesNotModifyInput(t *testing.T) {
	events := []models.Event{evt("1.1.1.1", 20), evt("1.1.1.1", 10), evt("1.1.1.1", 0)}
	before := append([]models.Event(nil), events...)

	_, err := DetectBursts(events, 2, 60)
	require.NoError(t, err)
	assert.Equal(t, before, events)
}

func TestBurstDetector_FindingsInTriggerOrder(t *testing.T) {
	events := []models.Event{
		evt("2.2.2.2", 0),
		evt("1.1.1.1", 5),
		evt("1.1.1.1", 10),
		evt("2.2.2.2", 20),
	}

	findings, err := DetectBursts(events, 2, 60)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "1.1.1.1", findings[0].SrcAddr)
	assert.Equal(t, "2.2.2.2", findings[1].SrcAddr)
}

func TestBurstDetector_WindowBoundary(t *testing.T) {
	// An event exactly window seconds older than the newest one is evicted
	// only when strictly earlier than the cutoff, so it still counts.
	events := []models.Event{evt("1.1.1.1", 0), evt("1.1.1.1", 60)}
	findings, err := DetectBursts(events, 2, 60)
	require.NoError(t, err)
	require.Len(t, findings, 1)

	events = []models.Event{evt("1.1.1.1", 0), evt("1.1.1.1", 61)}
	findings, err = DetectBursts(events, 2, 60)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestBurstDetector_ZeroWindow(t *testing.T) {
	events := []models.Event{
		evt("1.1.1.1", 0),
		evt("1.1.1.1", 1),
		evt("1.1.1.1", 1),
	}

	findings, err := DetectBursts(events, 2, 0)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, 2, findings[0].Count)
	assert.Equal(t, "12/25-10:00:01.000000", findings[0].WindowStartTs)
}

func TestBurstDetector_ThresholdOne(t *testing.T) {
	events := []models.Event{evt("1.1.1.1", 0), evt("2.2.2.2", 1), evt("1.1.1.1", 2)}
	findings, err := DetectBursts(events, 1, 300)
	require.NoError(t, err)
	assert.Len(t, findings, 3)
}

func TestBurstDetector_Empty(t *testing.T) {
	findings, err := DetectBursts(nil, 3, 300)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestNewBurstDetector_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  BurstConfig
	}{
		{"zero threshold", BurstConfig{Threshold: 0, WindowSeconds: 300}},
		{"negative threshold", BurstConfig{Threshold: -2, WindowSeconds: 300}},
		{"negative window", BurstConfig{Threshold: 3, WindowSeconds: -1}},
		{"window overflows duration", BurstConfig{Threshold: 3, WindowSeconds: int(MaxWindowSeconds) + 1}},
		{"huge window", BurstConfig{Threshold: 3, WindowSeconds: 1 << 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewBurstDetector(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, d)
		})
	}

	_, err := DetectBursts([]models.Event{evt("1.1.1.1", 0)}, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = DetectBursts([]models.Event{evt("1.1.1.1", 0)}, 3, 10_000_000_000)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBurstDetector_LongestWindow(t *testing.T) {
	events := []models.Event{evt("1.1.1.1", 0), evt("1.1.1.1", 1), evt("1.1.1.1", 2)}

	for _, window := range []int{300, 9_000_000_000, int(MaxWindowSeconds)} {
		findings, err := DetectBursts(events, 3, window)
		require.NoError(t, err, "window %d", window)
		require.Len(t, findings, 1, "window %d", window)
		assert.Equal(t, 3, findings[0].Count)
	}
}

func TestEventQueue_ClearReleasesEvents(t *testing.T) {
	events := []models.Event{evt("1.1.1.1", 0), evt("1.1.1.1", 1)}
	q := &eventQueue{}
	q.push(&events[0])
	q.push(&events[1])

	backing := q.items[:2]
	q.clear()

	assert.Equal(t, 0, q.len())
	assert.Nil(t, backing[0])
	assert.Nil(t, backing[1])
}
