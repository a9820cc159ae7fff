package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks booking API request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "leaseline",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// MessagesIngestedTotal counts inbound platform messages accepted into the queue.
var MessagesIngestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "ingest",
		Name:      "messages_total",
		Help:      "Total number of inbound messages ingested, by platform.",
	},
	[]string{"platform"},
)

// MessagesDeduplicatedTotal counts inbound messages dropped as duplicates.
var MessagesDeduplicatedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "ingest",
		Name:      "deduplicated_total",
		Help:      "Total number of inbound messages dropped as duplicates, by platform.",
	},
	[]string{"platform"},
)

// WorkerCyclesTotal counts worker loop ticks, by outcome (ran, skipped_overlap, error).
var WorkerCyclesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "worker",
		Name:      "cycles_total",
		Help:      "Total number of worker loop cycles, by outcome.",
	},
	[]string{"outcome"},
)

// WorkerCycleDuration tracks how long a worker loop cycle took to process its batch.
var WorkerCycleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "leaseline",
		Subsystem: "worker",
		Name:      "cycle_duration_seconds",
		Help:      "Worker loop cycle duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	},
)

// ConversationsClassifiedTotal counts classifier outcomes, by intent and provider.
var ConversationsClassifiedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "classifier",
		Name:      "classifications_total",
		Help:      "Total number of classifier invocations, by intent and provider.",
	},
	[]string{"intent", "provider"},
)

// GuardrailBlocksTotal counts messages blocked by the policy gate, by stage.
var GuardrailBlocksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "guardrails",
		Name:      "blocks_total",
		Help:      "Total number of auto-reply attempts blocked, by stage.",
	},
	[]string{"stage"},
)

// DispatchAttemptsTotal counts outbound dispatch attempts, by platform and result.
var DispatchAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "dispatch",
		Name:      "attempts_total",
		Help:      "Total number of outbound dispatch attempts, by platform and result.",
	},
	[]string{"platform", "result"},
)

// DispatchRetriesTotal counts retry attempts performed before a dispatch settled.
var DispatchRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "dispatch",
		Name:      "retries_total",
		Help:      "Total number of dispatch retry attempts, by platform.",
	},
	[]string{"platform"},
)

// DispatchDuplicatesSuppressedTotal counts dispatch attempts suppressed
// because the compare-and-set found an in-progress or completed attempt
// already owning the dispatch key.
var DispatchDuplicatesSuppressedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "dispatch",
		Name:      "duplicates_suppressed_total",
		Help:      "Total number of outbound dispatch attempts suppressed as duplicates, by platform.",
	},
	[]string{"platform"},
)

// CircuitBreakerStateChangesTotal counts circuit breaker transitions, by key and new state.
var CircuitBreakerStateChangesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "circuitbreaker",
		Name:      "state_changes_total",
		Help:      "Total number of circuit breaker state transitions, by key and new state.",
	},
	[]string{"key", "state"},
)

// DeadLetterTotal counts dispatch attempts that exhausted retries and landed in the dead letter path.
var DeadLetterTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "dispatch",
		Name:      "dead_letter_total",
		Help:      "Total number of dispatch attempts moved to the dead letter path, by platform.",
	},
	[]string{"platform"},
)

// BookingAttemptsTotal counts showing booking attempts, by result kind.
var BookingAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "booking",
		Name:      "attempts_total",
		Help:      "Total number of showing booking attempts, by result.",
	},
	[]string{"result"},
)

// OpsNotificationsTotal counts ops notifications sent, by reason.
var OpsNotificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "leaseline",
		Subsystem: "notify",
		Name:      "ops_notifications_total",
		Help:      "Total number of ops notifications sent, by reason.",
	},
	[]string{"reason"},
)

// QueueClaimedGauge reports the number of queue entries currently claimed (leased) by a worker.
var QueueClaimedGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "leaseline",
		Subsystem: "queue",
		Name:      "claimed_entries",
		Help:      "Number of queue entries currently under an active claim lease.",
	},
)

// All returns all leaseline-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		MessagesIngestedTotal,
		MessagesDeduplicatedTotal,
		WorkerCyclesTotal,
		WorkerCycleDuration,
		ConversationsClassifiedTotal,
		GuardrailBlocksTotal,
		DispatchAttemptsTotal,
		DispatchDuplicatesSuppressedTotal,
		DispatchRetriesTotal,
		CircuitBreakerStateChangesTotal,
		DeadLetterTotal,
		BookingAttemptsTotal,
		OpsNotificationsTotal,
		QueueClaimedGauge,
	}
}

// NewRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors passed as arguments.
func NewRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
