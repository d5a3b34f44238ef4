package fastlog

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hervehildenbrand/alert-radar/pkg/models"
)

// ErrMalformedField is returned when a numeric field accepted by the grammar
// cannot be converted, e.g. a priority that overflows int.
var ErrMalformedField = errors.New("malformed field")

// Normalizer turns matching lines into events.
type Normalizer struct {
	grammar *Grammar
	year    int
	loc     *time.Location
}

// NewNormalizer creates a normalizer. The year is injected into every
// timestamp; loc may be nil for zone-less timestamps.
func NewNormalizer(grammar *Grammar, year int, loc *time.Location) *Normalizer {
	if grammar == nil {
		grammar = NewGrammar(GrammarOptions{})
	}
	return &Normalizer{grammar: grammar, year: year, loc: loc}
}

// Normalize parses one line into an Event.
// Returns nil, nil if the line is not an alert line.
func (n *Normalizer) Normalize(line string) (*models.Event, error) {
	tok, ok := n.grammar.Match(line)
	if !ok {
		return nil, nil
	}

	ts, err := ResolveTimestamp(tok.Timestamp, n.year, n.loc)
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		TsRaw:         tok.Timestamp,
		TsAbsolute:    ts,
		Message:       tok.Message,
		Protocol:      tok.Protocol,
		Src:           SplitEndpoint(tok.Src),
		Dst:           SplitEndpoint(tok.Dst),
		SignatureText: tok.Signature,
		Signature:     ParseSignature(tok.Signature),
		RawLine:       line,
	}

	if tok.HasClassification {
		class := tok.Classification
		event.Classification = &class
	}

	if tok.HasPriority {
		prio, err := strconv.Atoi(tok.Priority)
		if err != nil {
			return nil, fmt.Errorf("%w: priority %q: %v", ErrMalformedField, tok.Priority, err)
		}
		event.Priority = &prio
	}

	return event, nil
}
