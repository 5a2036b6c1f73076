package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wisefido_sos"

var (
	utterancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances processed, partitioned by terminal pipeline state.",
		},
		[]string{"state"},
	)

	candidatesSuppressedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_suppressed_total",
			Help:      "Match candidates dropped by the context filter, partitioned by suppressor.",
		},
		[]string{"suppressor"},
	)

	dedupRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_rejections_total",
			Help:      "Alert candidates rejected by the deduplication controller.",
		},
		[]string{"category", "reason"},
	)

	alertsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dispatched_total",
			Help:      "Alerts dispatched, partitioned by category, severity and notification outcome.",
		},
		[]string{"category", "severity", "outcome"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Per-channel notification attempts, partitioned by result.",
		},
		[]string{"channel", "result"},
	)

	phraseCacheRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phrase_cache_refresh_total",
			Help:      "Phrase cache refreshes against the phrase store, partitioned by result.",
		},
		[]string{"result"},
	)

	processingSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "utterance_processing_seconds",
			Help:      "End-to-end utterance processing latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

// Register 将采集器注册到指定 Registerer（重复注册忽略）
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		utterancesTotal,
		candidatesSuppressedTotal,
		dedupRejectionsTotal,
		alertsDispatchedTotal,
		notificationsTotal,
		phraseCacheRefreshTotal,
		processingSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveUtterance 记录一条语句的终态与耗时
func ObserveUtterance(state string, duration time.Duration) {
	utterancesTotal.WithLabelValues(state).Inc()
	if duration < 0 {
		duration = 0
	}
	processingSeconds.Observe(duration.Seconds())
}

func IncSuppressed(suppressor string) {
	candidatesSuppressedTotal.WithLabelValues(suppressor).Inc()
}

func IncDedupRejection(category, reason string) {
	dedupRejectionsTotal.WithLabelValues(category, reason).Inc()
}

func IncAlertDispatched(category, severity, outcome string) {
	alertsDispatchedTotal.WithLabelValues(category, severity, outcome).Inc()
}

func IncNotification(channel string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	notificationsTotal.WithLabelValues(channel, result).Inc()
}

func IncPhraseCacheRefresh(result string) {
	phraseCacheRefreshTotal.WithLabelValues(result).Inc()
}
