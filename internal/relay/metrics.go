package relay

import "github.com/prometheus/client_golang/prometheus"

// Outcome is the terminal state of one post.
type Outcome string

const (
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeFiltered   Outcome = "filtered"
	OutcomeFailed     Outcome = "failed"
	OutcomeSent       Outcome = "sent"
	OutcomeSendFailed Outcome = "send_failed"
)

// Metrics holds all Prometheus metrics for the relay
type Metrics struct {
	Posts              *prometheus.CounterVec
	Enqueued           prometheus.Counter
	InFlight           prometheus.Gauge
	TranslationSeconds prometheus.Histogram
	PrunedRecords      prometheus.Counter
}

// NewMetrics creates the relay metrics and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Posts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_posts_total",
				Help: "Posts handled, by terminal outcome",
			},
			[]string{"outcome"},
		),
		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_jobs_enqueued_total",
			Help: "Posts claimed and handed to the processing queue",
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_pipelines_in_flight",
			Help: "Pipelines currently running",
		}),
		TranslationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_translation_duration_seconds",
			Help:    "Time spent in the translation provider, retries included",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}),
		PrunedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_ledger_pruned_total",
			Help: "Ledger records removed by the retention sweep",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Posts, m.Enqueued, m.InFlight, m.TranslationSeconds, m.PrunedRecords)
	}
	return m
}

func (m *Metrics) record(o Outcome) {
	m.Posts.WithLabelValues(string(o)).Inc()
}
