package invite

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts invite activity. A nil *Metrics records nothing.
type Metrics struct {
	events          *prometheus.CounterVec
	redemptions     *prometheus.CounterVec
	persistFailures prometheus.Counter
	swept           prometheus.Counter
}

// NewMetrics registers the invite collectors with reg. A nil reg leaves the
// collectors unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securechat",
			Subsystem: "invite",
			Name:      "events_total",
			Help:      "Invite lifecycle events appended to channel history.",
		}, []string{"type", "subtype"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securechat",
			Subsystem: "invite",
			Name:      "redemptions_total",
			Help:      "Invite redemption attempts by outcome.",
		}, []string{"outcome"}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "securechat",
			Subsystem: "invite",
			Name:      "persist_failures_total",
			Help:      "Invite state writes that did not reach the store.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "securechat",
			Subsystem: "invite",
			Name:      "expired_swept_total",
			Help:      "Expired events recorded by the sweeper.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.events, m.redemptions, m.persistFailures, m.swept} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) event(e Event) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(e.Type), string(e.Subtype)).Inc()
}

func (m *Metrics) redemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) persistFailure() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) sweptExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}
