package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JonMunkholm/policyingest/internal/logging"
)

// Dispatcher runs one unit of work per chunk on a bounded pool of workers.
// A weighted semaphore caps how many store sessions the pool holds at once,
// independent of the worker count.
type Dispatcher struct {
	store   Store
	workers int
	conns   *semaphore.Weighted
	metrics *Metrics
}

// NewDispatcher creates a dispatcher with the given worker and store
// session limits. Non-positive limits are treated as 1.
func NewDispatcher(store Store, workers, maxConns int, m *Metrics) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if maxConns < 1 {
		maxConns = 1
	}
	return &Dispatcher{
		store:   store,
		workers: workers,
		conns:   semaphore.NewWeighted(int64(maxConns)),
		metrics: m,
	}
}

// Dispatch starts processing chunks and returns a channel that delivers
// exactly one Outcome per chunk, in completion order, and is then closed.
//
// Chunks still queued when ctx ends are reported as unit_start failures.
// The channel is buffered for every chunk so workers never block on a slow
// reader.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []Chunk) <-chan Outcome {
	out := make(chan Outcome, len(chunks))
	if len(chunks) == 0 {
		close(out)
		return out
	}

	queue := make(chan Chunk)
	var wg sync.WaitGroup
	for range min(d.workers, len(chunks)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range queue {
				out <- d.run(ctx, c)
			}
		}()
	}

	go func() {
		defer func() {
			close(queue)
			wg.Wait()
			close(out)
		}()
		for i, c := range chunks {
			select {
			case queue <- c:
			case <-ctx.Done():
				for _, rest := range chunks[i:] {
					o := unitStartOutcome(rest, fmt.Errorf("not scheduled: %w", ctx.Err()))
					d.metrics.recordChunk(o, 0)
					out <- o
				}
				return
			}
		}
	}()

	return out
}

// run processes one chunk while holding a store slot and a session. The
// session is released on every path, including a recovered panic.
func (d *Dispatcher) run(ctx context.Context, c Chunk) (o Outcome) {
	start := time.Now()
	ctx, log := logging.ContextWithFields(ctx, "chunk", c.Index)
	defer func() {
		d.metrics.recordChunk(o, time.Since(start))
	}()

	if err := d.conns.Acquire(ctx, 1); err != nil {
		return unitStartOutcome(c, fmt.Errorf("wait for store slot: %w", err))
	}
	defer d.conns.Release(1)

	sess, err := d.store.Acquire(ctx)
	if err != nil {
		log.Warn("chunk could not get a store session", "error", err)
		return unitStartOutcome(c, err)
	}
	defer sess.Release()

	d.metrics.chunkStarted()
	defer d.metrics.chunkFinished()

	cerr := processChunk(ctx, sess, c)
	if cerr != nil {
		log.Warn("chunk failed",
			"stage", cerr.Stage,
			"dimension", cerr.Dimension,
			"row", cerr.Row,
			"error", cerr.Message,
		)
	}
	return Outcome{Chunk: c.Index, Err: cerr}
}

func unitStartOutcome(c Chunk, err error) Outcome {
	return Outcome{Chunk: c.Index, Err: newChunkError(StageUnitStart, c.Index, err)}
}
