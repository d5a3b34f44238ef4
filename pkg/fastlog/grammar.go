// Package fastlog parses single-line "fast" style intrusion-detection alerts.
//
// A line looks like:
//
//	12/25-14:32:10.123456 [**] [1:1000001:1] ICMP Ping [**] [Classification: Misc activity] [Priority: 3] {ICMP} 192.168.1.10 -> 8.8.8.8
//
// The Classification and Priority brackets are optional. Addresses may carry a
// trailing :port.
package fastlog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hervehildenbrand/alert-radar/pkg/models"
)

const (
	sepPattern       = `[ \t]+`
	tsPattern        = `(?P<ts>\d{2}/\d{2}-\d{2}:\d{2}:\d{2}\.\d+)`
	addrPattern      = `[0-9A-Fa-f.:]+`
	classPattern     = `\[Classification:[ \t]*(?P<class>.*?)\]` + sepPattern
	priorityPattern  = `\[Priority:[ \t]*(?P<prio>\d+)\]` + sepPattern
	signaturePattern = `^(\d+):(\d+):(\d+)$`
)

var signatureRe = regexp.MustCompile(signaturePattern)

// GrammarOptions selects between the tolerant and strict line grammars.
type GrammarOptions struct {
	// RequirePriority rejects lines without a [Priority: N] bracket.
	RequirePriority bool
	// RequireSignature rejects lines whose signature bracket is not g:s:r.
	RequireSignature bool
}

// Tokens holds the raw sub-tokens of a matching line.
type Tokens struct {
	Timestamp         string
	Signature         string
	Message           string
	Classification    string
	HasClassification bool
	Priority          string
	HasPriority       bool
	Protocol          string
	Src               string
	Dst               string
}

// Grammar matches alert lines. It is immutable after construction and safe
// for concurrent use.
type Grammar struct {
	opts GrammarOptions
	line *regexp.Regexp

	tsIdx, sigIdx, msgIdx, classIdx, prioIdx, protoIdx, srcIdx, dstIdx int
}

// NewGrammar compiles the line pattern for the given options.
func NewGrammar(opts GrammarOptions) *Grammar {
	prio := `(?:` + priorityPattern + `)?`
	if opts.RequirePriority {
		prio = priorityPattern
	}

	pattern := `^` + tsPattern + sepPattern +
		`\[\*\*\]` + sepPattern +
		`\[(?P<sig>[^\]]+)\]` + sepPattern +
		`(?P<msg>.+?)` + sepPattern +
		`\[\*\*\]` + sepPattern +
		`(?:` + classPattern + `)?` +
		prio +
		`\{(?P<proto>\w+)\}` + sepPattern +
		`(?P<src>` + addrPattern + `)` + sepPattern + `->` + sepPattern +
		`(?P<dst>` + addrPattern + `)$`

	re := regexp.MustCompile(pattern)
	return &Grammar{
		opts:     opts,
		line:     re,
		tsIdx:    re.SubexpIndex("ts"),
		sigIdx:   re.SubexpIndex("sig"),
		msgIdx:   re.SubexpIndex("msg"),
		classIdx: re.SubexpIndex("class"),
		prioIdx:  re.SubexpIndex("prio"),
		protoIdx: re.SubexpIndex("proto"),
		srcIdx:   re.SubexpIndex("src"),
		dstIdx:   re.SubexpIndex("dst"),
	}
}

// Match trims the line and extracts its tokens. It returns false when the line
// does not have the alert shape; that is a normal filtering outcome.
func (g *Grammar) Match(line string) (Tokens, bool) {
	s := strings.TrimSpace(line)
	if s == "" {
		return Tokens{}, false
	}

	idx := g.line.FindStringSubmatchIndex(s)
	if idx == nil {
		return Tokens{}, false
	}

	group := func(i int) (string, bool) {
		if idx[2*i] < 0 {
			return "", false
		}
		return s[idx[2*i]:idx[2*i+1]], true
	}

	var tok Tokens
	tok.Timestamp, _ = group(g.tsIdx)
	tok.Signature, _ = group(g.sigIdx)
	msg, _ := group(g.msgIdx)
	tok.Message = strings.TrimSpace(msg)
	if class, ok := group(g.classIdx); ok {
		class = strings.TrimSpace(class)
		tok.Classification = class
		tok.HasClassification = class != ""
	}
	tok.Priority, tok.HasPriority = group(g.prioIdx)
	tok.Protocol, _ = group(g.protoIdx)
	tok.Src, _ = group(g.srcIdx)
	tok.Dst, _ = group(g.dstIdx)

	if tok.Message == "" {
		return Tokens{}, false
	}
	if g.opts.RequireSignature && ParseSignature(tok.Signature) == nil {
		return Tokens{}, false
	}

	return tok, true
}

// ParseSignature parses a g:s:r token. Anything else, including values that
// overflow 32 bits, yields nil; a partial triple is never returned.
func ParseSignature(token string) *models.SignatureID {
	m := signatureRe.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return nil
	}

	var vals [3]uint32
	for i := range vals {
		v, err := strconv.ParseUint(m[i+1], 10, 32)
		if err != nil {
			return nil
		}
		vals[i] = uint32(v)
	}

	return &models.SignatureID{GID: vals[0], SID: vals[1], Rev: vals[2]}
}

// SplitEndpoint splits an address token on its last colon. The suffix is taken
// as a port only when it is all digits and the remaining address neither is
// empty nor ends in a colon, so "2001:db8::1:443" gives port 443 while
// "2001:db8::beef" and "::1" stay whole.
func SplitEndpoint(token string) models.Endpoint {
	i := strings.LastIndexByte(token, ':')
	if i <= 0 || i == len(token)-1 {
		return models.Endpoint{Addr: token}
	}

	host, suffix := token[:i], token[i+1:]
	if strings.HasSuffix(host, ":") || !allDigits(suffix) {
		return models.Endpoint{Addr: token}
	}

	port, err := strconv.Atoi(suffix)
	if err != nil {
		return models.Endpoint{Addr: token}
	}

	return models.Endpoint{Addr: host, Port: &port}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
