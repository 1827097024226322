package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/policyingest/internal/logging"
)

// IngestConfig holds the knobs of one ingestion.
type IngestConfig struct {
	ChunkSize     int
	MaxWorkers    int
	MaxStoreConns int
	Timeout       time.Duration
}

// Service runs bulk ingestions against a Store.
type Service struct {
	store      Store
	cfg        IngestConfig
	dispatcher *Dispatcher
	limiter    *UploadLimiter
	metrics    *Metrics
	runs       RunStore
	remove     func(string) error
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records ingestion metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLimiter caps concurrent ingestions. Without it ingestions are not
// limited.
func WithLimiter(l *UploadLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithArtifactRemover replaces the function used to delete spooled uploads.
func WithArtifactRemover(remove func(string) error) Option {
	return func(s *Service) { s.remove = remove }
}

// NewService validates cfg and builds a Service.
func NewService(store Store, cfg IngestConfig, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("nil store")
	}
	if cfg.ChunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}

	s := &Service{
		store:  store,
		cfg:    cfg,
		remove: RemoveFile,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatcher = NewDispatcher(store, cfg.MaxWorkers, cfg.MaxStoreConns, s.metrics)
	return s, nil
}

// Limiter returns the ingestion limiter, or nil when none is configured.
func (s *Service) Limiter() *UploadLimiter {
	return s.limiter
}

// Ingest parses the spooled upload at path, processes it chunk by chunk and
// blocks until every chunk has reported. The artifact is removed exactly
// once on every path, including parse failures and rejected requests.
//
// A *StreamError means the input could not be parsed and nothing was
// written. Otherwise the returned Result lists every chunk failure; an
// empty list means the whole upload was persisted.
func (s *Service) Ingest(ctx context.Context, path string) (*Result, error) {
	uploadID := uuid.New()
	ctx, log := logging.ContextWithFields(ctx, "upload_id", uploadID.String())
	artifact := NewArtifact(path, s.remove)
	start := time.Now()
	run := newRun(ctx, uploadID, start)

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			s.discard(artifact, log)
			run.Status, run.Error = RunRejected, err.Error()
			s.finishRun(ctx, run, time.Since(start))
			log.Warn("upload rejected", "error", err)
			return nil, err
		}
		defer s.limiter.Release()
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	chunks, rows, err := s.readChunks(path)
	if err != nil {
		s.discard(artifact, log)
		run.Status, run.Error = RunParseError, err.Error()
		s.finishRun(ctx, run, time.Since(start))
		log.Warn("upload could not be parsed", "error", err)
		return nil, err
	}

	log.Info("ingest started",
		"rows", rows,
		"chunks", len(chunks),
		"chunk_size", s.cfg.ChunkSize,
	)

	agg := NewAggregator(uploadID.String(), len(chunks), rows, artifact, log)
	result := agg.Wait(s.dispatcher.Dispatch(ctx, chunks))

	run.Rows, run.Chunks, run.FailedChunks = rows, len(chunks), len(result.Errors)
	run.Status = RunSuccess
	if !result.OK() {
		run.Status = RunFailed
		run.Error = result.Errors[0].Error()
	}
	s.finishRun(ctx, run, result.Duration)

	if result.OK() {
		log.Info("ingest completed", "rows", rows, "chunks", len(chunks), "duration_ms", result.Duration.Milliseconds())
	} else {
		log.Warn("ingest completed with errors",
			"rows", rows,
			"chunks", len(chunks),
			"failed_chunks", len(result.Errors),
			"duration_ms", result.Duration.Milliseconds(),
		)
	}
	return result, nil
}

// readChunks parses and chunks the whole file before any work starts, so
// a parse error never leaves chunks in flight.
func (s *Service) readChunks(path string) ([]Chunk, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	rr, err := NewRecordReader(f)
	if err != nil {
		return nil, 0, err
	}

	chunks, err := ChunkRows(rr.Rows(), s.cfg.ChunkSize)
	if err != nil {
		return nil, 0, err
	}

	rows := 0
	for _, c := range chunks {
		rows += len(c.Rows)
	}
	s.metrics.recordInput(rows, rr.BytesRead())
	return chunks, rows, nil
}

func (s *Service) discard(a *Artifact, log *slog.Logger) {
	if err := a.Remove(); err != nil {
		log.Warn("failed to remove upload artifact", "path", a.Path, "error", err)
	}
}
