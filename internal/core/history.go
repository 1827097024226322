package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/policyingest/internal/logging"
)

// DefaultHistoryLimit is the number of runs History returns when no limit
// is given.
const DefaultHistoryLimit = 50

// maxHistoryLimit caps a single History page.
const maxHistoryLimit = 500

// ErrHistoryDisabled is returned by History when no RunStore is configured.
var ErrHistoryDisabled = errors.New("ingest history is not enabled")

// RunStatus is how an ingestion ended. The same values label the
// ingestions_total metric.
type RunStatus string

const (
	RunSuccess    RunStatus = "success"
	RunFailed     RunStatus = "failed"
	RunParseError RunStatus = "parse_error"
	RunRejected   RunStatus = "rejected"
)

// IngestRun is one entry of the ingest history.
type IngestRun struct {
	ID           uuid.UUID `json:"id"`
	FileName     string    `json:"file_name,omitempty"`
	Status       RunStatus `json:"status"`
	Rows         int       `json:"rows"`
	Chunks       int       `json:"chunks"`
	FailedChunks int       `json:"failed_chunks"`
	Error        string    `json:"error,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   int64     `json:"duration_ms"`
}

// RunStore persists the ingest history.
type RunStore interface {
	RecordRun(ctx context.Context, run IngestRun) error
	RecentRuns(ctx context.Context, limit int) ([]IngestRun, error)
}

// WithRunStore records every ingestion, including rejected and unparsable
// uploads, in rs.
func WithRunStore(rs RunStore) Option {
	return func(s *Service) { s.runs = rs }
}

// History returns the most recent runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]IngestRun, error) {
	if s.runs == nil {
		return nil, ErrHistoryDisabled
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return s.runs.RecentRuns(ctx, min(limit, maxHistoryLimit))
}

// newRun starts a history entry from the upload metadata in ctx.
func newRun(ctx context.Context, id uuid.UUID, start time.Time) IngestRun {
	meta := UploadMetaFromContext(ctx)
	return IngestRun{
		ID:        id,
		FileName:  meta.FileName,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		StartedAt: start,
	}
}

// finishRun records the metric and the history entry for a finished run.
// A history write failure is logged and never changes the ingest outcome.
func (s *Service) finishRun(ctx context.Context, run IngestRun, d time.Duration) {
	run.DurationMs = d.Milliseconds()
	s.metrics.recordIngestion(string(run.Status), d)

	if s.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.runs.RecordRun(ctx, run); err != nil {
		logging.FromContext(ctx).Warn("failed to record ingest run", "error", err)
	}
}
