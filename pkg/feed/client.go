// Package feed reads alert lines from a WebSocket endpoint, for sensors that
// forward their fast-alert output instead of writing it to disk.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hervehildenbrand/alert-radar/pkg/fastlog"
	"go.uber.org/zap"
)

// ErrSourceUnavailable is the fastlog sentinel, so callers test one value for
// both file and feed sources.
var ErrSourceUnavailable = fastlog.ErrSourceUnavailable

const (
	connectionTimeout  = 60 * time.Second
	writeTimeout       = 10 * time.Second
	defaultIdleTimeout = 30 * time.Second
)

// Client collects alert lines from a single WebSocket connection. It never
// reconnects: a run reads one session and then analyzes it.
type Client struct {
	url         string
	subscribe   string
	idleTimeout time.Duration
	logger      *zap.Logger

	framesReceived uint64
	linesReceived  uint64
}

// Option configures a Client.
type Option func(*Client)

// WithSubscribe sends msg as a text frame right after connecting.
func WithSubscribe(msg string) Option {
	return func(c *Client) { c.subscribe = msg }
}

// WithIdleTimeout ends the session when no frame arrives for d. Zero waits
// forever.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.idleTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		idleTimeout: defaultIdleTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Stats returns frame and line counters for the last session.
func (c *Client) Stats() map[string]interface{} {
	return map[string]interface{}{
		"url":             c.url,
		"frames_received": atomic.LoadUint64(&c.framesReceived),
		"lines_received":  atomic.LoadUint64(&c.linesReceived),
	}
}

// Collect reads one session and returns its lines in arrival order. The
// session ends on a normal close, when the idle timeout expires, or when ctx
// is cancelled; all three return the lines read so far.
func (c *Client) Collect(ctx context.Context) (fastlog.LineScanner, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: connectionTimeout,
	}

	c.logger.Info("connecting to feed", zap.String("url", c.url))
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrSourceUnavailable, c.url, err)
	}
	defer conn.Close()

	if c.subscribe != "" {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(c.subscribe)); err != nil {
			return nil, fmt.Errorf("%w: subscribe: %v", ErrSourceUnavailable, err)
		}
	}

	// Close the connection to unblock ReadMessage on cancellation.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-readDone:
		}
	}()

	var lines []string
	for {
		if c.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		}

		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if reason, ok := c.endOfSession(ctx, err); ok {
				c.logger.Info("feed session ended",
					zap.String("reason", reason),
					zap.Int("lines", len(lines)))
				return fastlog.SliceLines(lines), nil
			}
			return nil, fmt.Errorf("%w: read after %d lines: %v", ErrSourceUnavailable, len(lines), err)
		}

		if messageType != websocket.TextMessage {
			continue
		}
		atomic.AddUint64(&c.framesReceived, 1)

		frameLines := splitFrame(string(message))
		atomic.AddUint64(&c.linesReceived, uint64(len(frameLines)))
		lines = append(lines, frameLines...)
	}
}

func (c *Client) endOfSession(ctx context.Context, err error) (string, bool) {
	if ctx.Err() != nil {
		return "cancelled", true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return "closed", true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "idle", true
	}
	return "", false
}

// splitFrame splits a frame into lines. A single trailing newline does not
// produce an empty line.
func splitFrame(frame string) []string {
	if frame == "" {
		return nil
	}
	frame = strings.TrimSuffix(frame, "\n")
	lines := strings.Split(frame, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
