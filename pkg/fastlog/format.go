package fastlog

import (
	"strconv"
	"strings"

	"github.com/hervehildenbrand/alert-radar/pkg/models"
)

// FormatLine renders an event in the canonical field order. Parsing the result
// with the same year and zone yields the same fields.
func FormatLine(e models.Event) string {
	var b strings.Builder

	b.WriteString(e.TsRaw)
	b.WriteString(" [**] [")
	if e.Signature != nil {
		b.WriteString(FormatSignature(*e.Signature))
	} else {
		b.WriteString(e.SignatureText)
	}
	b.WriteString("] ")
	b.WriteString(e.Message)
	b.WriteString(" [**] ")

	if e.Classification != nil {
		b.WriteString("[Classification: ")
		b.WriteString(*e.Classification)
		b.WriteString("] ")
	}
	if e.Priority != nil {
		b.WriteString("[Priority: ")
		b.WriteString(strconv.Itoa(*e.Priority))
		b.WriteString("] ")
	}

	b.WriteString("{")
	b.WriteString(e.Protocol)
	b.WriteString("} ")
	b.WriteString(FormatEndpoint(e.Src))
	b.WriteString(" -> ")
	b.WriteString(FormatEndpoint(e.Dst))

	return b.String()
}

// FormatSignature renders a signature id as g:s:r.
func FormatSignature(sig models.SignatureID) string {
	return strconv.FormatUint(uint64(sig.GID), 10) + ":" +
		strconv.FormatUint(uint64(sig.SID), 10) + ":" +
		strconv.FormatUint(uint64(sig.Rev), 10)
}

// FormatEndpoint renders addr or addr:port.
func FormatEndpoint(ep models.Endpoint) string {
	if !ep.HasPort() {
		return ep.Addr
	}
	return ep.Addr + ":" + strconv.Itoa(*ep.Port)
}
