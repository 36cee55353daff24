package clickhouse

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pacelab/internal/domain/audit"
	"pacelab/internal/metrics"
	"pacelab/pkg/clickhouse"
	"pacelab/pkg/errors"
	"pacelab/pkg/logger"
)

const auditTable = "classification_audit"

const createAuditTable = `
	CREATE TABLE IF NOT EXISTS classification_audit (
		history_id     Int64,
		record_id      Int64,
		previous_label LowCardinality(String),
		new_label      LowCardinality(String),
		source         LowCardinality(String),
		method         LowCardinality(String),
		confidence     Nullable(Float64),
		model_id       String,
		changed_by     String,
		changed_at     DateTime64(6, 'UTC'),
		reason         String,
		features_used  String
	) ENGINE = ReplacingMergeTree
	PARTITION BY toYYYYMM(changed_at)
	ORDER BY (record_id, changed_at, history_id)
`

// AuditMirror copies committed audit entries into ClickHouse for analytics.
// Rows are buffered; ClickHouse is never the source of truth.
type AuditMirror struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter[*audit.Entry]
	log         *logger.Logger
}

var _ audit.Mirror = (*AuditMirror)(nil)

// NewAuditMirror creates the mirror with its batch writer
func NewAuditMirror(conn driver.Conn) *AuditMirror {
	m := &AuditMirror{
		conn: conn,
		log:  logger.Get().With("component", "audit_mirror"),
	}

	m.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig[*audit.Entry]{
		FlushFunc:    m.flushBatch,
		TableName:    auditTable,
		MaxBatchSize: 500,
		MaxAge:       5 * time.Second,
	})

	return m
}

// EnsureSchema creates the mirror table if it does not exist
func (m *AuditMirror) EnsureSchema(ctx context.Context) error {
	if err := m.conn.Exec(ctx, createAuditTable); err != nil {
		return errors.Wrap(err, "failed to create classification_audit table")
	}
	return nil
}

// Start begins the background flush loop
func (m *AuditMirror) Start(ctx context.Context) {
	m.batchWriter.Start(ctx)
}

// Stop flushes what is buffered and shuts down
func (m *AuditMirror) Stop(ctx context.Context) error {
	return m.batchWriter.Stop(ctx)
}

// Mirror buffers committed entries
func (m *AuditMirror) Mirror(ctx context.Context, entries []*audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return m.batchWriter.Add(ctx, entries...)
}

// Backlog reports rows still buffered and rows lost to buffer overflow
func (m *AuditMirror) Backlog() metrics.MirrorBacklog {
	stats := m.batchWriter.GetStats()
	return metrics.MirrorBacklog{Buffered: stats.BufferSize, Dropped: stats.Dropped}
}

// Flush forces buffered rows out, used by one-shot CLI commands
func (m *AuditMirror) Flush(ctx context.Context) error {
	return m.batchWriter.Flush(ctx)
}

func (m *AuditMirror) flushBatch(ctx context.Context, batch []*audit.Entry) error {
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	b, err := m.conn.PrepareBatch(ctx, `
		INSERT INTO classification_audit (
			history_id, record_id, previous_label, new_label, source, method,
			confidence, model_id, changed_by, changed_at, reason, features_used
		)
	`)
	if err != nil {
		metrics.RecordDBQuery("clickhouse", "audit_mirror", time.Since(start), err)
		return errors.Wrap(err, "failed to prepare batch")
	}

	for _, e := range batch {
		row := toMirrorRow(e)
		if err := b.Append(
			row.HistoryID,
			row.RecordID,
			row.PreviousLabel,
			row.NewLabel,
			row.Source,
			row.Method,
			row.Confidence,
			row.ModelID,
			row.ChangedBy,
			row.ChangedAt,
			row.Reason,
			row.FeaturesUsed,
		); err != nil {
			_ = b.Abort()
			metrics.RecordDBQuery("clickhouse", "audit_mirror", time.Since(start), err)
			return errors.Wrapf(err, "failed to append history_id=%d", e.HistoryID)
		}
	}

	err = b.Send()
	metrics.RecordDBQuery("clickhouse", "audit_mirror", time.Since(start), err)
	if err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	m.log.Debugw("Mirrored audit rows", "count", len(batch))
	return nil
}

type mirrorRow struct {
	HistoryID     int64
	RecordID      int64
	PreviousLabel string
	NewLabel      string
	Source        string
	Method        string
	Confidence    *float64
	ModelID       string
	ChangedBy     string
	ChangedAt     time.Time
	Reason        string
	FeaturesUsed  string
}

func toMirrorRow(e *audit.Entry) mirrorRow {
	row := mirrorRow{
		HistoryID:  e.HistoryID,
		RecordID:   e.RecordID,
		NewLabel:   e.NewLabel.String(),
		Source:     string(e.Source),
		Method:     e.Method.String(),
		Confidence: e.Confidence,
		ChangedBy:  e.ChangedBy,
		ChangedAt:  e.ChangedAt.UTC(),
		Reason:     e.Reason,
	}
	if e.PreviousLabel != nil {
		row.PreviousLabel = e.PreviousLabel.String()
	}
	if e.ModelID != nil {
		row.ModelID = e.ModelID.String()
	}
	row.FeaturesUsed = "{}"
	if len(e.FeaturesUsed) > 0 {
		if data, err := json.Marshal(e.FeaturesUsed); err == nil {
			row.FeaturesUsed = string(data)
		}
	}
	return row
}
