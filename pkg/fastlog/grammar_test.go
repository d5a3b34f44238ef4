package fastlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validLine = "12/25-14:32:10.123456 [**] [1:1000001:1] SOC LAB TEST: ICMP Ping Detected [**] " +
		"[Classification: Misc activity] [Priority: 3] {ICMP} 192.168.1.10 -> 8.8.8.8"
	portLine = "08/24-12:34:56.789012  [**] [1:1000001:1] Possible suspicious HTTP access " +
		"[**] [Priority: 2] {TCP} 192.168.1.10:51515 -> 93.184.216.34:80"
	bareLine = "12/25-16:11:37.070241  [**] [1:527:8] BAD-TRAFFIC same SRC/DST [**] {UDP} 10.0.0.5 -> 10.0.0.6"
)

func TestGrammar_Match(t *testing.T) {
	g := NewGrammar(GrammarOptions{})

	tok, ok := g.Match(validLine)
	require.True(t, ok)
	assert.Equal(t, "12/25-14:32:10.123456", tok.Timestamp)
	assert.Equal(t, "1:1000001:1", tok.Signature)
	assert.Equal(t, "SOC LAB TEST: ICMP Ping Detected", tok.Message)
	assert.True(t, tok.HasClassification)
	assert.Equal(t, "Misc activity", tok.Classification)
	assert.True(t, tok.HasPriority)
	assert.Equal(t, "3", tok.Priority)
	assert.Equal(t, "ICMP", tok.Protocol)
	assert.Equal(t, "192.168.1.10", tok.Src)
	assert.Equal(t, "8.8.8.8", tok.Dst)
}

func TestGrammar_OptionalBrackets(t *testing.T) {
	g := NewGrammar(GrammarOptions{})

	tests := []struct {
		name      string
		line      string
		wantClass bool
		wantPrio  bool
	}{
		{"both", validLine, true, true},
		{"priority only", portLine, false, true},
		{"neither", bareLine, false, false},
		{
			"classification only",
			"01/02-03:04:05.000001 [**] [1:2:3] msg [**] [Classification: Attempted Recon] {TCP} 1.2.3.4 -> 5.6.7.8",
			true, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, ok := g.Match(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.wantClass, tok.HasClassification)
			assert.Equal(t, tt.wantPrio, tok.HasPriority)
		})
	}
}

func TestGrammar_NoMatch(t *testing.T) {
	g := NewGrammar(GrammarOptions{})

	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"whitespace", "  \t  "},
		{"garbage", "this is not a snort log line"},
		{"missing arrow", "12/25-14:32:10.123456 [**] [1:2:3] msg [**] {TCP} 1.2.3.4 5.6.7.8"},
		{"missing protocol", "12/25-14:32:10.123456 [**] [1:2:3] msg [**] 1.2.3.4 -> 5.6.7.8"},
		{"missing closing marker", "12/25-14:32:10.123456 [**] [1:2:3] msg {TCP} 1.2.3.4 -> 5.6.7.8"},
		{"bad timestamp shape", "2025-12-25 14:32:10 [**] [1:2:3] msg [**] {TCP} 1.2.3.4 -> 5.6.7.8"},
		{"trailing junk", validLine + " extra"},
		{"priority before classification", "12/25-14:32:10.123456 [**] [1:2:3] msg [**] [Priority: 1] [Classification: x] {TCP} 1.2.3.4 -> 5.6.7.8"},
		{"non-numeric priority", "12/25-14:32:10.123456 [**] [1:2:3] msg [**] [Priority: high] {TCP} 1.2.3.4 -> 5.6.7.8"},
		{"hostname address", "12/25-14:32:10.123456 [**] [1:2:3] msg [**] {TCP} host.example -> 5.6.7.8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := g.Match(tt.line)
			assert.False(t, ok)
		})
	}
}

func TestGrammar_TrimsWhitespace(t *testing.T) {
	g := NewGrammar(GrammarOptions{})

	tok, ok := g.Match("   " + validLine + " \t\r")
	require.True(t, ok)
	assert.Equal(t, "8.8.8.8", tok.Dst)
}

func TestGrammar_MessageWithBrackets(t *testing.T) {
	g := NewGrammar(GrammarOptions{})

	line := "12/25-14:32:10.123456 [**] [1:2:3] ET POLICY [x] lookup [**] odd (v2) [**] [Priority: 2] {TCP} 1.2.3.4:1 -> 5.6.7.8:2"
	tok, ok := g.Match(line)
	require.True(t, ok)
	assert.Equal(t, "ET POLICY [x] lookup [**] odd (v2)", tok.Message)
	assert.Equal(t, "2", tok.Priority)
}

func TestGrammar_ClassificationWithBracket(t *testing.T) {
	g := NewGrammar(GrammarOptions{})

	tests := []struct {
		name      string
		line      string
		wantClass string
		wantPrio  string
	}{
		{
			"bracket inside",
			"12/25-14:32:10.123456 [**] [1:2:3] msg [**] [Classification: a]b] [Priority: 1] {TCP} 1.2.3.4 -> 5.6.7.8",
			"a]b", "1",
		},
		{
			"bracket inside without priority",
			"12/25-14:32:10.123456 [**] [1:2:3] msg [**] [Classification: Web [beta] rules] {TCP} 1.2.3.4 -> 5.6.7.8",
			"Web [beta] rules", "",
		},
		{
			"shortest close wins",
			"12/25-14:32:10.123456 [**] [1:2:3] msg [**] [Classification: Misc] [Priority: 2] {UDP} 1.2.3.4 -> 5.6.7.8",
			"Misc", "2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, ok := g.Match(tt.line)
			require.True(t, ok)
			assert.True(t, tok.HasClassification)
			assert.Equal(t, tt.wantClass, tok.Classification)
			assert.Equal(t, tt.wantPrio, tok.Priority)
			assert.Equal(t, "msg", tok.Message)
		})
	}
}

func TestGrammar_EmptyClassificationKeepsPriority(t *testing.T) {
	g := NewGrammar(GrammarOptions{})

	tok, ok := g.Match("12/25-14:32:10.123456 [**] [1:2:3] msg [**] [Classification: ] [Priority: 1] {TCP} 1.2.3.4 -> 5.6.7.8")
	require.True(t, ok)
	assert.False(t, tok.HasClassification)
	assert.True(t, tok.HasPriority)
	assert.Equal(t, "1", tok.Priority)
}

func TestGrammar_RequirePriority(t *testing.T) {
	strict := NewGrammar(GrammarOptions{RequirePriority: true})

	_, ok := strict.Match(portLine)
	assert.True(t, ok)
	_, ok = strict.Match(bareLine)
	assert.False(t, ok)
}

func TestGrammar_RequireSignature(t *testing.T) {
	line := "12/25-14:32:10.123456 [**] [local-rule] msg [**] {TCP} 1.2.3.4 -> 5.6.7.8"

	_, ok := NewGrammar(GrammarOptions{}).Match(line)
	assert.True(t, ok)

	_, ok = NewGrammar(GrammarOptions{RequireSignature: true}).Match(line)
	assert.False(t, ok)
}

func TestParseSignature(t *testing.T) {
	tests := []struct {
		input string
		want  []uint32
	}{
		{"1:1000001:1", []uint32{1, 1000001, 1}},
		{"0:0:0", []uint32{0, 0, 0}},
		{" 3:4:5 ", []uint32{3, 4, 5}},
		{"1:2", nil},
		{"1:2:3:4", nil},
		{"a:b:c", nil},
		{"1:-2:3", nil},
		{"1:99999999999:3", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sig := ParseSignature(tt.input)
			if tt.want == nil {
				assert.Nil(t, sig)
				return
			}
			require.NotNil(t, sig)
			assert.Equal(t, tt.want, []uint32{sig.GID, sig.SID, sig.Rev})
		})
	}
}

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		wantAddr string
		wantPort int // -1 for none
	}{
		{"ipv4", "192.168.1.10", "192.168.1.10", -1},
		{"ipv4 with port", "192.168.1.10:51515", "192.168.1.10", 51515},
		{"ipv6 with port", "2001:db8::1:443", "2001:db8::1", 443},
		{"ipv6 hex tail", "2001:db8::beef", "2001:db8::beef", -1},
		{"ipv6 full hex", "fe80:0:0:0:1ff:fe23:4567:890a", "fe80:0:0:0:1ff:fe23:4567:890a", -1},
		{"ipv6 loopback", "::1", "::1", -1},
		{"ipv6 double colon tail", "2001:db8::", "2001:db8::", -1},
		{"trailing colon", "10.0.0.1:", "10.0.0.1:", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := SplitEndpoint(tt.token)
			assert.Equal(t, tt.wantAddr, ep.Addr)
			assert.Equal(t, tt.wantPort >= 0, ep.HasPort())
			assert.Equal(t, tt.token, FormatEndpoint(ep))
			if tt.wantPort < 0 {
				return
			}
			assert.Equal(t, tt.wantPort, *ep.Port)
		})
	}
}
