// Package report renders a triage summary of parsed alerts and burst findings.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/hervehildenbrand/alert-radar/pkg/fastlog"
	"github.com/hervehildenbrand/alert-radar/pkg/models"
)

// SeverityFromPriority maps priority 1/2/3 to HIGH/MEDIUM/LOW and anything
// else, including a missing priority, to UNKNOWN.
func SeverityFromPriority(priority *int) string {
	if priority == nil {
		return models.SeverityUnknown
	}
	switch *priority {
	case 1:
		return models.SeverityHigh
	case 2:
		return models.SeverityMedium
	case 3:
		return models.SeverityLow
	default:
		return models.SeverityUnknown
	}
}

// EffectiveThreshold scales the requested burst threshold down for inputs
// smaller than it, never below 2.
func EffectiveThreshold(requested, totalEvents int) int {
	if totalEvents <= 0 {
		return requested
	}
	if totalEvents < requested {
		if totalEvents < 2 {
			return 2
		}
		return totalEvents
	}
	return requested
}

// Labeler annotates source addresses, e.g. with an asset owner.
type Labeler interface {
	Label(addr string) string
}

// Options controls report rendering.
type Options struct {
	Input              string
	Top                int
	RequestedThreshold int
	EffectiveThreshold int
	WindowSeconds      int
	Labels             Labeler
}

// Count is a key with its number of occurrences.
type Count struct {
	Key   string
	Count int
}

// SignatureSummary aggregates events sharing gid, sid, rev and message.
type SignatureSummary struct {
	Signature    string // g:s:r, or the raw bracket text
	Message      string
	Count        int
	BestPriority *int // lowest (most severe) priority seen
}

// Summary holds the aggregates the report prints.
type Summary struct {
	Events     int
	Severities map[string]int
	TopSources []Count
	TopSigs    []SignatureSummary
}

// Summarize computes report aggregates, keeping at most top entries per list.
// Ties are broken by first appearance.
func Summarize(events []models.Event, top int) Summary {
	s := Summary{
		Events:     len(events),
		Severities: make(map[string]int),
	}

	srcCounts := make(map[string]int)
	var srcOrder []string

	type sigKey struct {
		sig string
		msg string
	}
	sigs := make(map[sigKey]*SignatureSummary)
	var sigOrder []sigKey

	for _, e := range events {
		s.Severities[SeverityFromPriority(e.Priority)]++

		if _, ok := srcCounts[e.Src.Addr]; !ok {
			srcOrder = append(srcOrder, e.Src.Addr)
		}
		srcCounts[e.Src.Addr]++

		key := sigKey{sig: signatureKey(e), msg: e.Message}
		sum, ok := sigs[key]
		if !ok {
			sum = &SignatureSummary{Signature: key.sig, Message: key.msg}
			sigs[key] = sum
			sigOrder = append(sigOrder, key)
		}
		sum.Count++
		if e.Priority != nil && (sum.BestPriority == nil || *e.Priority < *sum.BestPriority) {
			p := *e.Priority
			sum.BestPriority = &p
		}
	}

	for _, addr := range srcOrder {
		s.TopSources = append(s.TopSources, Count{Key: addr, Count: srcCounts[addr]})
	}
	sort.SliceStable(s.TopSources, func(i, j int) bool {
		return s.TopSources[i].Count > s.TopSources[j].Count
	})
	if len(s.TopSources) > top {
		s.TopSources = s.TopSources[:top]
	}

	for _, key := range sigOrder {
		s.TopSigs = append(s.TopSigs, *sigs[key])
	}
	sort.SliceStable(s.TopSigs, func(i, j int) bool {
		return s.TopSigs[i].Count > s.TopSigs[j].Count
	})
	if len(s.TopSigs) > top {
		s.TopSigs = s.TopSigs[:top]
	}

	return s
}

func signatureKey(e models.Event) string {
	if e.Signature != nil {
		return fastlog.FormatSignature(*e.Signature)
	}
	return e.SignatureText
}

var severityOrder = []string{
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
	models.SeverityUnknown,
}

// Write renders the report.
func Write(w io.Writer, events []models.Event, findings []models.Burst, opts Options) error {
	top := opts.Top
	if top < 1 {
		top = 10
	}

	var b strings.Builder
	b.WriteString("SOC Detection Lab Report\n")
	fmt.Fprintf(&b, "Input: %s\n", opts.Input)
	fmt.Fprintf(&b, "Events parsed: %d\n", len(events))

	if len(events) == 0 {
		_, err := io.WriteString(w, b.String())
		return err
	}

	sum := Summarize(events, top)

	b.WriteString("\nSeverity breakdown (from Priority):\n")
	for _, sev := range severityOrder {
		if n, ok := sum.Severities[sev]; ok {
			fmt.Fprintf(&b, "  %s: %d\n", sev, n)
		}
	}

	fmt.Fprintf(&b, "\nTop %d source IPs by alert count:\n", top)
	for _, c := range sum.TopSources {
		fmt.Fprintf(&b, "  %s: %d", c.Key, c.Count)
		if opts.Labels != nil {
			if label := opts.Labels.Label(c.Key); label != "" {
				fmt.Fprintf(&b, " (%s)", label)
			}
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nTop %d signatures by frequency:\n", top)
	for _, sig := range sum.TopSigs {
		prio := "None"
		if sig.BestPriority != nil {
			prio = strconv.Itoa(*sig.BestPriority)
		}
		fmt.Fprintf(&b, "  [%s] %d  sev=%s prio=%s  %s\n",
			sig.Signature, sig.Count, SeverityFromPriority(sig.BestPriority), prio, sig.Message)
	}

	b.WriteString("\n")
	if opts.EffectiveThreshold != opts.RequestedThreshold {
		fmt.Fprintf(&b, "Burst findings (auto-scaled threshold: requested=%d, effective=%d) in %ds: %d\n",
			opts.RequestedThreshold, opts.EffectiveThreshold, opts.WindowSeconds, len(findings))
	} else {
		fmt.Fprintf(&b, "Burst findings (>= %d alerts in %ds): %d\n",
			opts.RequestedThreshold, opts.WindowSeconds, len(findings))
	}
	for i, f := range findings {
		if i >= top {
			break
		}
		fmt.Fprintf(&b, "  src=%s count=%d window=%ds start=%s end=%s\n",
			f.SrcAddr, f.Count, f.WindowSeconds, f.WindowStartTs, f.WindowEndTs)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
