package fastlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hervehildenbrand/alert-radar/pkg/models"
)

// ErrSourceUnavailable wraps failures to open or read the line source.
var ErrSourceUnavailable = errors.New("line source unavailable")

// maxLineSize bounds a single line. Longer lines are discarded and surface as
// an empty line, so the stream counts them as skipped.
const maxLineSize = 1024 * 1024

// LineScanner is the subset of *bufio.Scanner a Stream reads from.
type LineScanner interface {
	Scan() bool
	Text() string
	Err() error
}

// NewLineScanner returns a line scanner over r. Lines longer than
// maxLineSize come back empty instead of failing the scan.
func NewLineScanner(r io.Reader) *bufio.Scanner {
	return newLineScanner(r, maxLineSize)
}

func newLineScanner(r io.Reader, limit int) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	initial := 64 * 1024
	if initial > limit {
		initial = limit
	}
	sc.Buffer(make([]byte, initial), limit)
	sc.Split(scanBoundedLines(limit))
	return sc
}

// scanBoundedLines is bufio.ScanLines that drops lines of limit bytes or more
// instead of returning bufio.ErrTooLong.
func scanBoundedLines(limit int) bufio.SplitFunc {
	discarding := false
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			if discarding {
				discarding = false
				return i + 1, []byte{}, nil
			}
			return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
		}
		if atEOF {
			if discarding {
				discarding = false
				return len(data), []byte{}, nil
			}
			if len(data) > 0 {
				return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
			}
			return 0, nil, nil
		}
		if len(data) >= limit {
			discarding = true
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
}

// SliceLines adapts an in-memory slice of lines to a LineScanner.
func SliceLines(lines []string) LineScanner {
	return &sliceScanner{lines: lines, pos: -1}
}

type sliceScanner struct {
	lines []string
	pos   int
}

func (s *sliceScanner) Scan() bool {
	if s.pos+1 >= len(s.lines) {
		s.pos = len(s.lines)
		return false
	}
	s.pos++
	return true
}

func (s *sliceScanner) Text() string { return s.lines[s.pos] }
func (s *sliceScanner) Err() error   { return nil }

// Open opens path for reading; "-" means stdin.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return f, nil
}

// Stream lazily yields events from a line source, skipping lines that are not
// alerts. Output order matches input order. Usage mirrors bufio.Scanner:
//
//	for s.Next() {
//		e := s.Event()
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	lines LineScanner
	norm  *Normalizer

	current models.Event
	err     error
	done    bool

	linesRead    int
	linesSkipped int
}

// NewStream creates a stream reading from lines.
func NewStream(lines LineScanner, norm *Normalizer) *Stream {
	return &Stream{lines: lines, norm: norm}
}

// NewReaderStream is NewStream over an io.Reader.
func NewReaderStream(r io.Reader, norm *Normalizer) *Stream {
	return NewStream(NewLineScanner(r), norm)
}

// Next advances to the next event. It returns false at end of input or on the
// first hard failure; check Err afterwards.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	for s.lines.Scan() {
		s.linesRead++
		line := strings.ToValidUTF8(s.lines.Text(), "\uFFFD")

		event, err := s.norm.Normalize(line)
		if err != nil {
			s.err = fmt.Errorf("line %d: %w", s.linesRead, err)
			s.done = true
			return false
		}
		if event == nil {
			s.linesSkipped++
			continue
		}

		s.current = *event
		return true
	}

	if err := s.lines.Err(); err != nil {
		s.err = fmt.Errorf("%w: read after line %d: %v", ErrSourceUnavailable, s.linesRead, err)
	}
	s.done = true
	return false
}

// Event returns the event produced by the last successful Next.
func (s *Stream) Event() models.Event {
	return s.current
}

// Err returns the first hard failure, if any.
func (s *Stream) Err() error {
	return s.err
}

// LinesRead returns how many lines have been consumed so far.
func (s *Stream) LinesRead() int {
	return s.linesRead
}

// LinesSkipped returns how many consumed lines were not alert lines.
func (s *Stream) LinesSkipped() int {
	return s.linesSkipped
}

// Collect drains the stream into a slice.
func Collect(s *Stream) ([]models.Event, error) {
	var events []models.Event
	for s.Next() {
		events = append(events, s.Event())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
