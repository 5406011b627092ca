package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Slot-fill matching metrics
	MatchesComputed      prometheus.Histogram
	OffersCreated        prometheus.Counter
	OffersResolved       *prometheus.CounterVec
	NotificationsExpired prometheus.Counter
	AutoFillRuns         prometheus.Counter

	// Recall targeting metrics
	RecallIdentified  prometheus.Counter
	RecallEnrolled    prometheus.Counter
	RecallSkipped     prometheus.Counter
	OutreachProcessed *prometheus.CounterVec

	// Messaging metrics
	MessagesSent *prometheus.CounterVec
}

// NewMetrics creates all application metrics and registers them on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MatchesComputed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "waitlist_matches_per_slot",
			Help:      "Number of ranked candidates returned per matching call",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		OffersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_offers_created_total",
			Help:      "Total number of slot offers created",
		}),
		OffersResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_offers_resolved_total",
			Help:      "Total number of offers resolved, by outcome",
		}, []string{"outcome"}),
		NotificationsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_notifications_expired_total",
			Help:      "Total number of offers finalized as expired by the sweep",
		}),
		AutoFillRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_autofill_runs_total",
			Help:      "Total number of auto-fill passes over cancelled slots",
		}),
		RecallIdentified: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recall_patients_identified_total",
			Help:      "Total number of patients matched by campaign criteria",
		}),
		RecallEnrolled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recall_patients_enrolled_total",
			Help:      "Total number of patients newly enrolled into campaigns",
		}),
		RecallSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recall_patients_skipped_total",
			Help:      "Total number of identifications skipped as already active",
		}),
		OutreachProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recall_outreach_processed_total",
			Help:      "Total number of outreach contacts processed, by result",
		}, []string{"result"}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of outbound messages attempted, by channel and status",
		}, []string{"channel", "status"}),
	}
}
