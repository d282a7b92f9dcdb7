package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlens/agentlens/internal/trace"
)

func TestMemorySaveLoad(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	want := makeTrace("tr_mem", "in_memory", time.Now().UTC(), trace.StatusSuccess)
	require.NoError(t, b.Save(ctx, want))
	assert.Equal(t, 1, b.Len())

	got, err := b.Load(ctx, "tr_mem")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = b.Load(ctx, "tr_other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListSorted(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, b.Save(ctx, makeTrace("tr_1", "oldest", base.Add(-2*time.Hour), trace.StatusSuccess)))
	require.NoError(t, b.Save(ctx, makeTrace("tr_2", "newest", base, trace.StatusSuccess)))
	require.NoError(t, b.Save(ctx, makeTrace("tr_3", "middle", base.Add(-time.Hour), trace.StatusSuccess)))

	summaries, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "tr_2", summaries[0].TraceID)
	assert.Equal(t, "tr_3", summaries[1].TraceID)
	assert.Equal(t, "tr_1", summaries[2].TraceID)
}

func TestMemoryListEmpty(t *testing.T) {
	b := NewMemoryBackend()

	summaries, err := b.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestMemoryRejectsEmptyID(t *testing.T) {
	b := NewMemoryBackend()

	err := b.Save(context.Background(), &trace.Trace{})
	assert.Error(t, err)
}
