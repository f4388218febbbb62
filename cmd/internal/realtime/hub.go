package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"securechat/cmd/internal/invite"
	v1 "securechat/shared/contracts/invites/v1"

	"github.com/prometheus/client_golang/prometheus"
)

// Hub fans invite notifications and events out to connected feed clients.
// It implements invite.Notifier; delivery never blocks the caller and frames
// for a full client queue are dropped.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}

	dropped   atomic.Int64
	dropCount prometheus.Counter
}

var _ invite.Notifier = (*Hub)(nil)

// NewHub constructs an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		clients: make(map[*Client]struct{}),
	}
}

// RegisterMetrics exposes connection and drop counts on reg.
func (h *Hub) RegisterMetrics(reg prometheus.Registerer) error {
	h.dropCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "securechat",
		Subsystem: "realtime",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped because a client queue was full.",
	})
	connected := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "securechat",
		Subsystem: "realtime",
		Name:      "clients",
		Help:      "Connected feed clients.",
	}, func() float64 { return float64(h.Len()) })
	for _, c := range []prometheus.Collector{h.dropCount, connected} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Add registers c for fanout.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Remove unregisters c. It is safe to call more than once.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were dropped so far.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Notify implements invite.Notifier.
func (h *Hub) Notify(_ context.Context, n invite.Notification) {
	at := n.At
	if at.IsZero() {
		at = h.now()
	}
	h.broadcast(v1.TypeNotification, n.ChannelID, v1.NotificationPayload{
		Title:       n.Title,
		Description: n.Description,
		Tone:        string(n.Tone),
		At:          at,
	})
}

// Publish implements invite.Notifier.
func (h *Hub) Publish(_ context.Context, e invite.Event) {
	h.broadcast(v1.TypeInviteEvent, e.ChannelID, v1.InviteEventPayload{
		EventID:    e.ID,
		Type:       string(e.Type),
		Subtype:    string(e.Subtype),
		InviteID:   e.InviteID,
		InviteCode: e.InviteCode,
		Recipient:  e.Recipient,
		Method:     e.Method,
		Timestamp:  e.Timestamp,
	})
}

func (h *Hub) broadcast(typ, channelID string, payload any) {
	env, err := newEnvelope(typ, channelID, payload, h.now())
	if err != nil {
		h.log.Error("realtime.envelope.fail", "err", err, "type", typ)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !wants(c.ChannelID(), channelID) {
			continue
		}
		select {
		case <-c.Done():
		case c.Send <- env:
		default:
			h.dropped.Add(1)
			if h.dropCount != nil {
				h.dropCount.Inc()
			}
			h.log.Warn("realtime.fanout.drop", "session_id", c.SessionID, "type", typ)
		}
	}
}

// wants reports whether a client subscribed to sub receives a frame for
// channelID. Unscoped frames and unscoped subscriptions match everything.
func wants(sub, channelID string) bool {
	return sub == "" || channelID == "" || sub == channelID
}

func newEnvelope(typ, channelID string, payload any, ts time.Time) (v1.Envelope, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return v1.Envelope{}, err
	}
	id, err := NewEnvelopeID(ts)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.Envelope{
		V:         v1.Version,
		Type:      typ,
		ID:        id,
		ChannelID: channelID,
		TS:        ts,
		Payload:   p,
	}, nil
}
