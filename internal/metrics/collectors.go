package metrics

import (
	"context"
	"time"

	"pacelab/pkg/logger"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

// CustomCollector collects registry and audit gauges straight from the databases
type CustomCollector struct {
	log        *logger.Logger
	postgres   *sqlx.DB
	clickhouse driver.Conn
	backlog    func() MirrorBacklog

	// Descriptors
	modelsByStatus      *prometheus.Desc
	pendingFeedback     *prometheus.Desc
	auditRows24h        *prometheus.Desc
	mirroredAuditRows24 *prometheus.Desc
	mirrorBuffered      *prometheus.Desc
	mirrorDropped       *prometheus.Desc
}

// MirrorBacklog is what the audit mirror still holds in memory
type MirrorBacklog struct {
	Buffered int
	Dropped  int
}

// NewCustomCollector creates a new custom metrics collector. clickhouse may be nil.
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB, clickhouse driver.Conn) *CustomCollector {
	return &CustomCollector{
		log:        log,
		postgres:   postgres,
		clickhouse: clickhouse,

		modelsByStatus: prometheus.NewDesc(
			"pacelab_models",
			"Number of registered models by status",
			[]string{"status"}, nil,
		),
		pendingFeedback: prometheus.NewDesc(
			"pacelab_feedback_unprocessed",
			"Feedback records not yet consumed by training",
			nil, nil,
		),
		auditRows24h: prometheus.NewDesc(
			"pacelab_audit_rows_24h",
			"Audit trail rows written in the last 24h by source",
			[]string{"source"}, nil,
		),
		mirroredAuditRows24: prometheus.NewDesc(
			"pacelab_audit_mirror_rows_24h",
			"Audit rows mirrored to ClickHouse in the last 24h",
			nil, nil,
		),
		mirrorBuffered: prometheus.NewDesc(
			"pacelab_audit_mirror_buffered",
			"Audit rows waiting for the next ClickHouse flush",
			nil, nil,
		),
		mirrorDropped: prometheus.NewDesc(
			"pacelab_audit_mirror_dropped",
			"Audit rows dropped because the mirror buffer overflowed",
			nil, nil,
		),
	}
}

// WithMirrorBacklog reports the in-memory state of the audit mirror on each scrape
func (c *CustomCollector) WithMirrorBacklog(backlog func() MirrorBacklog) *CustomCollector {
	c.backlog = backlog
	return c
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.modelsByStatus
	ch <- c.pendingFeedback
	ch <- c.auditRows24h
	ch <- c.mirroredAuditRows24
	ch <- c.mirrorBuffered
	ch <- c.mirrorDropped
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectModelStats(ctx, ch)
	c.collectPendingFeedback(ctx, ch)
	c.collectAuditStats(ctx, ch)

	if c.clickhouse != nil {
		c.collectMirrorStats(ctx, ch)
	}
	if c.backlog != nil {
		b := c.backlog()
		ch <- prometheus.MustNewConstMetric(c.mirrorBuffered, prometheus.GaugeValue, float64(b.Buffered))
		ch <- prometheus.MustNewConstMetric(c.mirrorDropped, prometheus.CounterValue, float64(b.Dropped))
	}
}

func (c *CustomCollector) collectModelStats(ctx context.Context, ch chan<- prometheus.Metric) {
	type statusCount struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	var stats []statusCount
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT status, COUNT(*) AS count
		FROM model_registry
		GROUP BY status
	`)
	if err != nil {
		c.log.Warnw("Failed to collect model registry metric", "error", err)
		return
	}

	for _, s := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.modelsByStatus,
			prometheus.GaugeValue,
			float64(s.Count),
			s.Status,
		)
	}
}

func (c *CustomCollector) collectPendingFeedback(ctx context.Context, ch chan<- prometheus.Metric) {
	var count int
	err := c.postgres.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM classification_feedback f
		LEFT JOIN feedback_processing p ON p.feedback_id = f.feedback_id
		WHERE p.feedback_id IS NULL
	`)
	if err != nil {
		c.log.Warnw("Failed to collect feedback metric", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.pendingFeedback,
		prometheus.GaugeValue,
		float64(count),
	)
}

func (c *CustomCollector) collectAuditStats(ctx context.Context, ch chan<- prometheus.Metric) {
	type sourceCount struct {
		Source string `db:"source"`
		Count  int    `db:"count"`
	}

	var stats []sourceCount
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT source, COUNT(*) AS count
		FROM classification_history
		WHERE changed_at > NOW() - INTERVAL '24 hours'
		GROUP BY source
	`)
	if err != nil {
		c.log.Warnw("Failed to collect audit metric", "error", err)
		return
	}

	for _, s := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.auditRows24h,
			prometheus.GaugeValue,
			float64(s.Count),
			s.Source,
		)
	}
}

func (c *CustomCollector) collectMirrorStats(ctx context.Context, ch chan<- prometheus.Metric) {
	var count uint64
	row := c.clickhouse.QueryRow(ctx, `
		SELECT count()
		FROM classification_audit
		WHERE changed_at > now() - INTERVAL 24 HOUR
	`)
	if err := row.Scan(&count); err != nil {
		c.log.Warnw("Failed to collect audit mirror metric", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.mirroredAuditRows24,
		prometheus.GaugeValue,
		float64(count),
	)
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
