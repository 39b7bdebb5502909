package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	MessagesHandled *prometheus.CounterVec
	HostileBlocked  prometheus.Counter
	StorageBlocked  prometheus.Counter
	GenerationCalls *prometheus.CounterVec
	ShardOps        *prometheus.CounterVec
	EvictedRecords  prometheus.Counter
	PipelineLatency prometheus.Histogram
	ActiveShards    prometheus.Gauge
	DisengagedTurns prometheus.Counter
	FallbackReplies prometheus.Counter
	WSMessages      *prometheus.CounterVec
	WSWriteErrors   *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		MessagesHandled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_handled_total",
			Help:      "Inbound messages by classified type and mood.",
		}, []string{"type", "mood"}),
		HostileBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hostile_messages_total",
			Help:      "Messages answered with a synthesized hostility boundary.",
		}),
		StorageBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_blocked_total",
			Help:      "History writes rejected by the safety filter.",
		}),
		GenerationCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Generation calls by outcome.",
		}, []string{"outcome"}),
		ShardOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shard_ops_total",
			Help:      "Shard operations by op and outcome.",
		}, []string{"op", "outcome"}),
		EvictedRecords: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_records_total",
			Help:      "Records removed by the retention sweep.",
		}),
		PipelineLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_latency_ms",
			Help:      "End-to-end message pipeline latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000},
		}),
		ActiveShards: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_shards",
			Help:      "Number of registered storage shards.",
		}),
		DisengagedTurns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disengaged_turns_total",
			Help:      "Turns where the disengagement signal fired.",
		}),
		FallbackReplies: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_replies_total",
			Help:      "Replies served from the static fallback.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Websocket messages by direction and type.",
		}, []string{"direction", "type"}),
		WSWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_write_errors_total",
			Help:      "Websocket write failures by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObservePipelineLatency(d time.Duration) {
	m.PipelineLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
