package metricspush

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder accumulates the accounting totals that get pushed: settled
// request counts, sat volume per share, paid top-ups and payouts.
type Recorder interface {
	RecordSettledRequest(gatewayID string, earnerSats, platformSats int64)
	RecordTopupPaid(sats int64)
	RecordPayout(status string, sats int64)
}

type noopRecorder struct{}

func (noopRecorder) RecordSettledRequest(string, int64, int64) {}
func (noopRecorder) RecordTopupPaid(int64)                     {}
func (noopRecorder) RecordPayout(string, int64)                {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

// RecordSettledRequest counts one settled call and its split sat volume.
func RecordSettledRequest(gatewayID string, earnerSats, platformSats int64) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordSettledRequest(gatewayID, earnerSats, platformSats)
}

// RecordTopupPaid counts one settled top-up and its sat amount.
func RecordTopupPaid(sats int64) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordTopupPaid(sats)
}

// RecordPayout counts one payout attempt by final status.
func RecordPayout(status string, sats int64) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordPayout(status, sats)
}

type pushMetrics struct {
	settledRequests *prometheus.CounterVec
	settledSats     *prometheus.CounterVec
	topupsPaid      prometheus.Counter
	topupSats       prometheus.Counter
	payouts         *prometheus.CounterVec
	payoutSats      *prometheus.CounterVec
}

func newMetrics(regs ...prometheus.Registerer) *pushMetrics {
	m := &pushMetrics{
		settledRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "satgate_settled_requests_total",
			Help: "Settled proxied requests per gateway.",
		}, []string{"gateway"}),
		settledSats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "satgate_settled_sats_total",
			Help: "Settled sat volume per gateway and share.",
		}, []string{"gateway", "share"}),
		topupsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "satgate_topups_paid_total",
			Help: "Top-ups confirmed paid.",
		}),
		topupSats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "satgate_topup_sats_total",
			Help: "Sat volume credited through paid top-ups.",
		}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "satgate_payouts_total",
			Help: "Payout attempts by final status.",
		}, []string{"status"}),
		payoutSats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "satgate_payout_sats_total",
			Help: "Sat volume paid out by final status.",
		}, []string{"status"}),
	}

	for _, reg := range regs {
		if reg == nil {
			continue
		}
		reg.MustRegister(
			m.settledRequests,
			m.settledSats,
			m.topupsPaid,
			m.topupSats,
			m.payouts,
			m.payoutSats,
		)
	}
	return m
}

type recorder struct {
	metrics *pushMetrics
}

func newRecorder(metrics *pushMetrics) *recorder {
	return &recorder{metrics: metrics}
}

func (r *recorder) RecordSettledRequest(gatewayID string, earnerSats, platformSats int64) {
	if r == nil || r.metrics == nil {
		return
	}
	gateway := normalizeLabel(gatewayID)
	r.metrics.settledRequests.WithLabelValues(gateway).Inc()
	if earnerSats > 0 {
		r.metrics.settledSats.WithLabelValues(gateway, "earner").Add(float64(earnerSats))
	}
	if platformSats > 0 {
		r.metrics.settledSats.WithLabelValues(gateway, "platform").Add(float64(platformSats))
	}
}

func (r *recorder) RecordTopupPaid(sats int64) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.topupsPaid.Inc()
	if sats > 0 {
		r.metrics.topupSats.Add(float64(sats))
	}
}

func (r *recorder) RecordPayout(status string, sats int64) {
	if r == nil || r.metrics == nil {
		return
	}
	label := normalizeLabel(status)
	r.metrics.payouts.WithLabelValues(label).Inc()
	if sats > 0 {
		r.metrics.payoutSats.WithLabelValues(label).Add(float64(sats))
	}
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
