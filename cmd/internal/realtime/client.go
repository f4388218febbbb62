package realtime

import (
	"sync"
	"time"

	v1 "securechat/shared/contracts/invites/v1"
)

// Client is one connected feed session.
//
// Send is never closed by the server so that concurrent fanout cannot panic;
// done tells the session goroutines to stop. Close is idempotent.
type Client struct {
	SessionID string
	Send      chan v1.Envelope

	mu        sync.RWMutex
	channelID string

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client subscribed to channelID ("" for all channels)
// with a bounded send queue.
func NewClient(sessionID, channelID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		SessionID: sessionID,
		Send:      make(chan v1.Envelope, sendQueueSize),
		channelID: channelID,
		done:      make(chan struct{}),
	}
}

// ChannelID returns the current subscription.
func (c *Client) ChannelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channelID
}

func (c *Client) setChannel(channelID string) {
	c.mu.Lock()
	c.channelID = channelID
	c.mu.Unlock()
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// rateLimiter admits at most limit inbound frames per sliding window.
type rateLimiter struct {
	mu     sync.Mutex
	seen   []time.Time
	limit  int
	window time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &rateLimiter{seen: make([]time.Time, 0, limit), limit: limit, window: window}
}

func (r *rateLimiter) allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)
	kept := r.seen[:0]
	for _, t := range r.seen {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	r.seen = kept
	if len(r.seen) >= r.limit {
		return false
	}
	r.seen = append(r.seen, now)
	return true
}
