package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	LeadsIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "leads_ingested_total", Help: "Total leads accepted by the webhook endpoint"})

	LeadsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "leads_rejected_total", Help: "Leads rejected by validation, by rejection code"}, []string{"code"})

	DeliveryAttempts = prometheus.NewCounter(prometheus.CounterOpts{Name: "delivery_attempts_total", Help: "Total delivery attempts made to the customer API"})

	DeliverySuccess = prometheus.NewCounter(prometheus.CounterOpts{Name: "delivery_success_total", Help: "Delivery attempts that succeeded"})

	DeliveryRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "delivery_retries_total", Help: "Delivery attempts that failed but will be retried"})

	DeliveryPermanentFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "delivery_permanent_failures_total", Help: "Leads that ended PERMANENTLY_FAILED at the delivery stage (non-retriable failure or attempts exhausted)"})

	MappingFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "mapping_failures_total", Help: "Leads that failed mapping to the customer payload"})

	QueueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "lead_queue_depth", Help: "Jobs currently pending dispatch"})

	InFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "lead_jobs_inflight", Help: "Jobs currently leased by a worker"})

	OrphansResweeped = prometheus.NewCounter(prometheus.CounterOpts{Name: "lead_orphans_reswept_total", Help: "RECEIVED leads with no job row re-enqueued by the orphan sweep"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			LeadsIngested,
			LeadsRejected,
			DeliveryAttempts,
			DeliverySuccess,
			DeliveryRetries,
			DeliveryPermanentFailures,
			MappingFailures,
			QueueDepthGauge,
			InFlightGauge,
			OrphansResweeped,
		)
	})
	return promhttp.Handler()
}
