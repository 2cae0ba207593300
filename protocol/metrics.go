package protocol

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	noop "go.opentelemetry.io/otel/metric/noop"
)

// Metrics aggregates the protocol worker counters. Prometheus collectors are
// registered on the default registry; OpenTelemetry instruments fall back to
// no-ops when the meter provider is not configured.
type Metrics struct {
	promBans     *prometheus.CounterVec
	promMessages *prometheus.CounterVec
	promUnbans   prometheus.Counter
	promWishlist prometheus.Gauge
	promPropRecs prometheus.Gauge

	otelBans     metric.Int64Counter
	otelMessages metric.Int64Counter
	otelUnbans   metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

func coreMetrics() *Metrics {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("massa/protocol")
		bans, err := meter.Int64Counter("protocol_peer_bans_total",
			metric.WithDescription("Peers banned, by reason"))
		if err != nil {
			bans = noopInt64Counter()
		}
		messages, err := meter.Int64Counter("protocol_messages_total",
			metric.WithDescription("Validated protocol messages, by type and result"))
		if err != nil {
			messages = noopInt64Counter()
		}
		unbans, err := meter.Int64Counter("protocol_peer_unbans_total",
			metric.WithDescription("Peers restored by the unban sweep"))
		if err != nil {
			unbans = noopInt64Counter()
		}

		metricsInst = &Metrics{
			promBans: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "massa_protocol_peer_bans_total",
				Help: "Peers banned, by reason.",
			}, []string{"reason"}),
			promMessages: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "massa_protocol_messages_total",
				Help: "Validated protocol messages, by type and result.",
			}, []string{"type", "result"}),
			promUnbans: promauto.NewCounter(prometheus.CounterOpts{
				Name: "massa_protocol_peer_unbans_total",
				Help: "Peers restored by the unban sweep.",
			}),
			promWishlist: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "massa_protocol_wishlist_pending",
				Help: "Blocks currently wanted.",
			}),
			promPropRecs: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "massa_protocol_propagation_records",
				Help: "Blocks with live propagation records.",
			}),
			otelBans:     bans,
			otelMessages: messages,
			otelUnbans:   unbans,
		}
	})
	return metricsInst
}

func noopInt64Counter() metric.Int64Counter {
	counter, _ := noop.NewMeterProvider().Meter("massa/protocol").Int64Counter("noop")
	return counter
}

// IncBan counts one ban with its reason.
func (m *Metrics) IncBan(reason string) {
	m.promBans.WithLabelValues(reason).Inc()
	m.otelBans.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// IncMessage counts one validated message outcome.
func (m *Metrics) IncMessage(msgType, result string) {
	m.promMessages.WithLabelValues(msgType, result).Inc()
	m.otelMessages.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("type", msgType),
		attribute.String("result", result),
	))
}

// AddUnbans counts peers restored by a sweep.
func (m *Metrics) AddUnbans(n int) {
	m.promUnbans.Add(float64(n))
	m.otelUnbans.Add(context.Background(), int64(n))
}

// SetWishlistPending records the wishlist depth.
func (m *Metrics) SetWishlistPending(n int) {
	m.promWishlist.Set(float64(n))
}

// SetPropagationRecords records the tracker size.
func (m *Metrics) SetPropagationRecords(n int) {
	m.promPropRecs.Set(float64(n))
}
