package core

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"
)

// Artifact is the spooled upload file. Remove deletes it at most once no
// matter how many paths call it.
type Artifact struct {
	Path   string
	remove func(string) error
	once   sync.Once
	err    error
}

// NewArtifact wraps path. A nil remove uses RemoveFile.
func NewArtifact(path string, remove func(string) error) *Artifact {
	if remove == nil {
		remove = RemoveFile
	}
	return &Artifact{Path: path, remove: remove}
}

// Remove deletes the artifact on the first call and returns that call's
// error on every call.
func (a *Artifact) Remove() error {
	a.once.Do(func() {
		a.err = a.remove(a.Path)
	})
	return a.err
}

// RemoveFile deletes path, treating an already missing file as success.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Aggregator collects chunk outcomes and makes the terminal decision. It is
// the only reader of the outcome channel, so its counter and error list
// need no locking.
type Aggregator struct {
	uploadID string
	chunks   int
	rows     int
	artifact *Artifact
	log      *slog.Logger
	start    time.Time

	once   sync.Once
	result *Result
}

func NewAggregator(uploadID string, chunks, rows int, artifact *Artifact, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		uploadID: uploadID,
		chunks:   chunks,
		rows:     rows,
		artifact: artifact,
		log:      log,
		start:    time.Now(),
	}
}

// Wait consumes outcomes until every chunk has reported once, then
// finishes. A duplicate report for a chunk is ignored. If the channel
// closes early, each silent chunk is recorded as a unit_start failure so
// the decision still covers every chunk.
func (a *Aggregator) Wait(outcomes <-chan Outcome) *Result {
	reported := make([]bool, a.chunks)
	completed := 0
	var errs []*ChunkError

	for completed < a.chunks {
		o, ok := <-outcomes
		if !ok {
			break
		}
		if o.Chunk < 0 || o.Chunk >= a.chunks || reported[o.Chunk] {
			a.log.Error("ignoring unexpected chunk outcome", "chunk", o.Chunk)
			continue
		}
		reported[o.Chunk] = true
		completed++
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}

	for i, ok := range reported {
		if !ok {
			errs = append(errs, newChunkError(StageUnitStart, i, errors.New("chunk never reported an outcome")))
		}
	}

	return a.Finish(errs)
}

// Finish builds the Result and removes the artifact. Only the first call
// has any effect; later calls return the same Result.
func (a *Aggregator) Finish(errs []*ChunkError) *Result {
	a.once.Do(func() {
		slices.SortFunc(errs, func(x, y *ChunkError) int {
			return x.Chunk - y.Chunk
		})

		a.result = &Result{
			UploadID: a.uploadID,
			Chunks:   a.chunks,
			Rows:     a.rows,
			Errors:   errs,
			Duration: time.Since(a.start),
		}

		if a.artifact != nil {
			if err := a.artifact.Remove(); err != nil {
				a.log.Warn("failed to remove upload artifact", "path", a.artifact.Path, "error", err)
			}
		}
	})
	return a.result
}
