// Package decisionlog persists routing-decision records to SQLite.
package decisionlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openmake/ensemble/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id     TEXT NOT NULL,
	mode           TEXT NOT NULL,
	query_length   INTEGER NOT NULL,
	history_depth  INTEGER NOT NULL,
	has_document   INTEGER NOT NULL,
	image_count    INTEGER NOT NULL,
	agent_id       TEXT,
	routing_stage  TEXT,
	confidence     REAL,
	model          TEXT,
	strategy       TEXT,
	fallback_reason TEXT,
	security_flag  TEXT,
	prompt_tokens  INTEGER NOT NULL,
	output_tokens  INTEGER NOT NULL,
	elapsed_ms     INTEGER NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_request ON decisions(request_id);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
`

// SQLiteSink implements domain.DecisionSink on an embedded SQLite database.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (or opens) the database at path and ensures the schema.
func Open(path string, logger *slog.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	// Serialized access; the sink is low-volume and contention-free writes
	// matter more than parallelism.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init decision log schema: %w", err)
	}
	return &SQLiteSink{db: db, logger: logger}, nil
}

// Record implements domain.DecisionSink.
func (s *SQLiteSink) Record(ctx context.Context, rec domain.DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (
			request_id, mode, query_length, history_depth, has_document,
			image_count, agent_id, routing_stage, confidence, model,
			strategy, fallback_reason, security_flag, prompt_tokens,
			output_tokens, elapsed_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		string(rec.Mode),
		rec.QueryLength,
		rec.HistoryDepth,
		boolInt(rec.HasDocument),
		rec.ImageCount,
		rec.AgentID,
		rec.RoutingStage,
		rec.Confidence,
		rec.Model,
		rec.Strategy,
		rec.FallbackReason,
		rec.SecurityFlag,
		rec.PromptTokens,
		rec.OutputTokens,
		rec.Elapsed.Milliseconds(),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert decision record: %w", err)
	}
	return nil
}

// Recent returns the latest n records, newest first. Used by operational
// tooling; the engine itself only writes.
func (s *SQLiteSink) Recent(ctx context.Context, n int) ([]domain.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, mode, query_length, history_depth, has_document,
			image_count, agent_id, routing_stage, confidence, model,
			strategy, fallback_reason, security_flag, prompt_tokens,
			output_tokens, elapsed_ms, created_at
		FROM decisions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query decision records: %w", err)
	}
	defer rows.Close()

	var out []domain.DecisionRecord
	for rows.Next() {
		var rec domain.DecisionRecord
		var mode, createdAt string
		var hasDoc, elapsedMS int64
		if err := rows.Scan(
			&rec.RequestID, &mode, &rec.QueryLength, &rec.HistoryDepth, &hasDoc,
			&rec.ImageCount, &rec.AgentID, &rec.RoutingStage, &rec.Confidence, &rec.Model,
			&rec.Strategy, &rec.FallbackReason, &rec.SecurityFlag, &rec.PromptTokens,
			&rec.OutputTokens, &elapsedMS, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		rec.Mode = domain.Mode(mode)
		rec.HasDocument = hasDoc != 0
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			rec.CreatedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteSink) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domain.DecisionSink = (*SQLiteSink)(nil)
