package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacelab_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error|skipped
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pacelab_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pacelab_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)

	// Training metrics
	TrainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacelab_training_runs_total",
			Help: "Total number of training runs by outcome",
		},
		[]string{"outcome"}, // outcome: success|noop|insufficient_data|timeout|persistence_failure|error
	)

	TrainingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacelab_training_duration_seconds",
			Help:    "Training run duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	TrainingSamples = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacelab_training_samples",
			Help: "Number of valid samples used by the last successful training run",
		},
	)

	ModelSeparation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacelab_model_separation_score",
			Help: "Silhouette score of the last trained model",
		},
	)

	// Registry metrics
	ModelActivations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacelab_model_activations_total",
			Help: "Total number of model activation attempts",
		},
		[]string{"status"}, // status: success|conflict|error
	)

	ActiveModelVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacelab_active_model_version",
			Help: "Version of the currently active model (0 when none)",
		},
	)

	ModelIntegrityOK = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacelab_model_integrity_ok",
			Help: "1 when the active model's artifact and registry agree, 0 otherwise",
		},
	)

	// Classification metrics
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacelab_classifications_total",
			Help: "Total number of classifications by method and label",
		},
		[]string{"method", "label"},
	)

	Fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacelab_fallbacks_total",
			Help: "Total number of rule-based fallback classifications by reason",
		},
		[]string{"reason"},
	)

	ClassificationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacelab_classification_batch_duration_seconds",
			Help:    "Classification batch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Audit metrics
	AuditWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacelab_audit_writes_total",
			Help: "Total number of audit trail rows written",
		},
		[]string{"status"}, // status: success|failure
	)

	FeedbackPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacelab_feedback_pending",
			Help: "Number of feedback records not yet consumed by a training run",
		},
	)

	// Database metrics
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacelab_db_queries_total",
			Help: "Total database queries",
		},
		[]string{"database", "operation", "status"}, // database: postgres|clickhouse|redis
	)

	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pacelab_db_query_duration_seconds",
			Help:    "Database query duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"database", "operation"},
	)

	// System metrics
	KafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacelab_kafka_messages_total",
			Help: "Lifecycle events written to Kafka",
		},
		[]string{"topic", "result"}, // produced|failed
	)
)

var initOnce sync.Once

// Init registers all metrics with Prometheus
func Init() {
	initOnce.Do(func() {
		// Worker metrics
		prometheus.MustRegister(WorkerExecutions)
		prometheus.MustRegister(WorkerDuration)
		prometheus.MustRegister(WorkerLastRun)

		// Training metrics
		prometheus.MustRegister(TrainingRuns)
		prometheus.MustRegister(TrainingDuration)
		prometheus.MustRegister(TrainingSamples)
		prometheus.MustRegister(ModelSeparation)

		// Registry metrics
		prometheus.MustRegister(ModelActivations)
		prometheus.MustRegister(ActiveModelVersion)
		prometheus.MustRegister(ModelIntegrityOK)

		// Classification metrics
		prometheus.MustRegister(Classifications)
		prometheus.MustRegister(Fallbacks)
		prometheus.MustRegister(ClassificationLatency)

		// Audit metrics
		prometheus.MustRegister(AuditWrites)
		prometheus.MustRegister(FeedbackPending)

		// Database metrics
		prometheus.MustRegister(DBQueries)
		prometheus.MustRegister(DBQueryDuration)

		// System metrics
		prometheus.MustRegister(KafkaMessages)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWorkerExecution records a worker execution
func RecordWorkerExecution(worker string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(duration.Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordWorkerSkip records an iteration that had nothing to do
func RecordWorkerSkip(worker string) {
	WorkerExecutions.WithLabelValues(worker, "skipped").Inc()
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}

// RecordTraining records the outcome of a training run
func RecordTraining(outcome string, duration time.Duration) {
	TrainingRuns.WithLabelValues(outcome).Inc()
	TrainingDuration.Observe(duration.Seconds())
}

// RecordTrainedModel records quality figures of a freshly trained model
func RecordTrainedModel(samples int, separation float64) {
	TrainingSamples.Set(float64(samples))
	ModelSeparation.Set(separation)
}

// RecordActivation records an activation attempt and, on success, the new active version
func RecordActivation(status string, version int) {
	ModelActivations.WithLabelValues(status).Inc()
	if status == "success" {
		ActiveModelVersion.Set(float64(version))
	}
}

// RecordIntegrity sets the integrity gauge
func RecordIntegrity(ok bool) {
	if ok {
		ModelIntegrityOK.Set(1)
		return
	}
	ModelIntegrityOK.Set(0)
}

// RecordClassification records a single classification decision
func RecordClassification(method, label, fallbackReason string) {
	Classifications.WithLabelValues(method, label).Inc()
	if fallbackReason != "" {
		Fallbacks.WithLabelValues(fallbackReason).Inc()
	}
}

// RecordClassificationBatch records the duration of a classification batch
func RecordClassificationBatch(duration time.Duration) {
	ClassificationLatency.Observe(duration.Seconds())
}

// RecordAuditWrites records audit trail write outcomes
func RecordAuditWrites(success, failure int) {
	if success > 0 {
		AuditWrites.WithLabelValues("success").Add(float64(success))
	}
	if failure > 0 {
		AuditWrites.WithLabelValues("failure").Add(float64(failure))
	}
}

// RecordDBQuery records a database query
func RecordDBQuery(database, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	DBQueries.WithLabelValues(database, operation, status).Inc()
	DBQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

func RecordKafkaMessage(topic, result string) {
	KafkaMessages.WithLabelValues(topic, result).Inc()
}
