package core_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/policyingest/internal/core"
	"github.com/JonMunkholm/policyingest/internal/memstore"
)

func makeChunks(n int) []core.Chunk {
	chunks := make([]core.Chunk, n)
	for i := range chunks {
		chunks[i] = core.Chunk{
			Index:  i,
			Offset: i,
			Rows: []core.Row{{
				core.ColAgent:        "agent-" + strconv.Itoa(i%3),
				core.ColPolicyNumber: "P" + strconv.Itoa(i),
			}},
		}
	}
	return chunks
}

func drain(out <-chan core.Outcome) []core.Outcome {
	var got []core.Outcome
	for o := range out {
		got = append(got, o)
	}
	return got
}

func TestDispatcher_OneOutcomePerChunk(t *testing.T) {
	store := memstore.New()
	d := core.NewDispatcher(store, 4, 2, nil)

	got := drain(d.Dispatch(context.Background(), makeChunks(25)))
	require.Len(t, got, 25)

	seen := make(map[int]bool)
	for _, o := range got {
		assert.False(t, seen[o.Chunk], "chunk %d reported twice", o.Chunk)
		seen[o.Chunk] = true
		assert.Nil(t, o.Err)
	}

	assert.LessOrEqual(t, store.MaxOpenSessions(), 2)
	assert.Equal(t, 0, store.OpenSessions())
	assert.Equal(t, 25, store.Acquired())
	assert.Len(t, store.Keys(core.DimAgent), 3)
}

func TestDispatcher_NoChunks(t *testing.T) {
	d := core.NewDispatcher(memstore.New(), 4, 2, nil)
	assert.Empty(t, drain(d.Dispatch(context.Background(), nil)))
}

func TestDispatcher_CancelledBeforeStart(t *testing.T) {
	store := memstore.New()
	d := core.NewDispatcher(store, 2, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := drain(d.Dispatch(ctx, makeChunks(10)))
	require.Len(t, got, 10)
	for _, o := range got {
		require.NotNil(t, o.Err)
		assert.Equal(t, core.StageUnitStart, o.Err.Stage)
	}
	assert.Empty(t, store.Policies())
}

func TestDispatcher_NonPositiveLimits(t *testing.T) {
	store := memstore.New()
	d := core.NewDispatcher(store, 0, -1, nil)

	got := drain(d.Dispatch(context.Background(), makeChunks(3)))
	assert.Len(t, got, 3)
	assert.Equal(t, 1, store.MaxOpenSessions())
}
