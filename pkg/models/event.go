// Package models defines data structures for alert events and burst findings.
package models

import "time"

// SignatureID is the generator:signature:revision triple of the rule that fired.
type SignatureID struct {
	GID uint32 `json:"gid"`
	SID uint32 `json:"sid"`
	Rev uint32 `json:"rev"`
}

// Endpoint is an address token with an optional port.
type Endpoint struct {
	Addr string `json:"addr"`
	Port *int   `json:"port,omitempty"`
}

// HasPort reports whether the endpoint carried a port suffix.
func (e Endpoint) HasPort() bool {
	return e.Port != nil
}

// Event represents one parsed alert line.
type Event struct {
	TsRaw          string       `json:"ts"`          // MM/DD-HH:MM:SS.ffffff
	TsAbsolute     time.Time    `json:"ts_absolute"` // injected year and zone
	Message        string       `json:"message"`
	Classification *string      `json:"classification,omitempty"`
	Priority       *int         `json:"priority,omitempty"`
	Protocol       string       `json:"protocol"`
	Src            Endpoint     `json:"src"`
	Dst            Endpoint     `json:"dst"`
	SignatureText  string       `json:"signature_text"` // bracket contents, kept for re-rendering
	Signature      *SignatureID `json:"signature,omitempty"`
	RawLine        string       `json:"raw"`
}

// Burst represents a detected cluster of alerts from one source address.
type Burst struct {
	SrcAddr       string `json:"src_addr"`
	Count         int    `json:"count"`
	WindowSeconds int    `json:"window_seconds"`
	WindowStartTs string `json:"window_start_ts"`
	WindowEndTs   string `json:"window_end_ts"`
}

// Severity labels derived from priority.
const (
	SeverityHigh    = "HIGH"
	SeverityMedium  = "MEDIUM"
	SeverityLow     = "LOW"
	SeverityUnknown = "UNKNOWN"
)
