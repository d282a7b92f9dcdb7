package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlens/agentlens/internal/trace"
)

func makeTrace(traceID, name string, start time.Time, status trace.Status) *trace.Trace {
	span := &trace.Span{
		SpanID:     "span_" + traceID,
		TraceID:    traceID,
		Name:       name,
		SpanType:   trace.TypeFunction,
		Status:     status,
		StartTime:  start,
		EndTime:    start.Add(50 * time.Millisecond),
		DurationMS: 50,
		Inputs:     map[string]any{"query": "book a flight"},
		Outputs:    map[string]any{"intent": "travel_booking"},
		Metadata:   map[string]any{},
		LLMCalls:   []trace.LLMCall{},
	}
	if status == trace.StatusError {
		span.Error = "upstream unavailable"
		span.ErrorType = "errors.errorString"
	}
	tr := &trace.Trace{
		TraceID: traceID,
		Name:    name,
		Spans:   []*trace.Span{span},
	}
	tr.Finalize()
	return tr
}

func newFileBackend(t *testing.T, cfg FileConfig) *FileBackend {
	t.Helper()
	if cfg.BaseDir == "" {
		cfg.BaseDir = t.TempDir()
	}
	b, err := NewFileBackend(cfg, nil)
	require.NoError(t, err)
	return b
}

func TestFileSaveLoadRoundTrip(t *testing.T) {
	b := newFileBackend(t, FileConfig{})
	ctx := context.Background()

	want := makeTrace("tr_roundtrip", "classify_intent", time.Now().UTC(), trace.StatusSuccess)
	require.NoError(t, b.Save(ctx, want))

	got, err := b.Load(ctx, "tr_roundtrip")
	require.NoError(t, err)

	assert.Equal(t, want.TraceID, got.TraceID)
	assert.Equal(t, want.Name, got.Name)
	require.Len(t, got.Spans, 1)
	assert.Equal(t, want.Spans[0].SpanID, got.Spans[0].SpanID)
	assert.Equal(t, want.Spans[0].Status, got.Spans[0].Status)
	assert.Equal(t, "travel_booking", got.Spans[0].Outputs["intent"])
	assert.True(t, want.StartTime.Equal(got.StartTime))
	assert.Equal(t, want.Metadata, got.Metadata)
}

func TestFileLoadUnknownID(t *testing.T) {
	b := newFileBackend(t, FileConfig{})

	_, err := b.Load(context.Background(), "tr_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileListOrderedAndIdempotent(t *testing.T) {
	b := newFileBackend(t, FileConfig{})
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, b.Save(ctx, makeTrace("tr_old", "old", base.Add(-time.Hour), trace.StatusSuccess)))
	require.NoError(t, b.Save(ctx, makeTrace("tr_new", "new", base, trace.StatusError)))

	for i := 0; i < 2; i++ {
		summaries, err := b.List(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 2)
		assert.Equal(t, "tr_new", summaries[0].TraceID)
		assert.Equal(t, "tr_old", summaries[1].TraceID)
		assert.Equal(t, trace.StatusError, summaries[0].Status)
		assert.Equal(t, 1, summaries[0].SpanCount)
	}
}

func TestFileListOrderedByStartTimeNotSaveOrder(t *testing.T) {
	b := newFileBackend(t, FileConfig{})
	ctx := context.Background()
	base := time.Now().UTC()

	// Backfill: the older trace arrives after the newer one.
	require.NoError(t, b.Save(ctx, makeTrace("tr_recent", "recent", base, trace.StatusSuccess)))
	require.NoError(t, b.Save(ctx, makeTrace("tr_backfill", "backfill", base.Add(-time.Hour), trace.StatusSuccess)))

	summaries, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "tr_recent", summaries[0].TraceID)
	assert.Equal(t, "tr_backfill", summaries[1].TraceID)
}

func TestFileListEmptyStore(t *testing.T) {
	b := newFileBackend(t, FileConfig{})

	summaries, err := b.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestFileSaveOverwritesSameID(t *testing.T) {
	b := newFileBackend(t, FileConfig{})
	ctx := context.Background()
	start := time.Now().UTC()

	require.NoError(t, b.Save(ctx, makeTrace("tr_dup", "first", start, trace.StatusSuccess)))
	require.NoError(t, b.Save(ctx, makeTrace("tr_dup", "second", start, trace.StatusError)))

	got, err := b.Load(ctx, "tr_dup")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)

	summaries, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "second", summaries[0].Name)
}

func TestFileIndexCap(t *testing.T) {
	b := newFileBackend(t, FileConfig{MaxIndexEntries: 2})
	ctx := context.Background()
	base := time.Now().UTC()

	for i, id := range []string{"tr_a", "tr_b", "tr_c"} {
		tr := makeTrace(id, id, base.Add(time.Duration(i)*time.Minute), trace.StatusSuccess)
		require.NoError(t, b.Save(ctx, tr))
	}

	summaries, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Records beyond the cap stay loadable by ID.
	_, err = b.Load(ctx, "tr_a")
	assert.NoError(t, err)
}

func TestFileReconcileIndexesOrphans(t *testing.T) {
	dir := t.TempDir()
	b := newFileBackend(t, FileConfig{BaseDir: dir})
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, makeTrace("tr_orphan", "orphan", time.Now().UTC(), trace.StatusSuccess)))

	// Simulate a crash between record write and index update.
	require.NoError(t, os.Remove(filepath.Join(dir, "index.json")))

	reopened := newFileBackend(t, FileConfig{BaseDir: dir})
	summaries, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "tr_orphan", summaries[0].TraceID)
}

func TestFileReconcileDropsDanglingEntries(t *testing.T) {
	dir := t.TempDir()
	b := newFileBackend(t, FileConfig{BaseDir: dir})
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, makeTrace("tr_kept", "kept", time.Now().UTC(), trace.StatusSuccess)))
	require.NoError(t, b.Save(ctx, makeTrace("tr_gone", "gone", time.Now().UTC(), trace.StatusSuccess)))

	// Record file deleted out from under the index.
	require.NoError(t, os.Remove(filepath.Join(dir, "traces", "tr_gone.json")))

	reopened := newFileBackend(t, FileConfig{BaseDir: dir})
	summaries, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "tr_kept", summaries[0].TraceID)
}

func TestFileCorruptIndexRebuilt(t *testing.T) {
	dir := t.TempDir()
	b := newFileBackend(t, FileConfig{BaseDir: dir})
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, makeTrace("tr_ok", "ok", time.Now().UTC(), trace.StatusSuccess)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte("{not json"), 0o644))

	summaries, err := b.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "tr_ok", summaries[0].TraceID)
}

func TestFileCompressedRecords(t *testing.T) {
	dir := t.TempDir()
	b := newFileBackend(t, FileConfig{BaseDir: dir, Compress: true})
	ctx := context.Background()

	want := makeTrace("tr_gz", "compressed", time.Now().UTC(), trace.StatusSuccess)
	require.NoError(t, b.Save(ctx, want))

	_, err := os.Stat(filepath.Join(dir, "traces", "tr_gz.json.gz"))
	require.NoError(t, err)

	got, err := b.Load(ctx, "tr_gz")
	require.NoError(t, err)
	assert.Equal(t, want.TraceID, got.TraceID)

	// Reconcile must pick compressed records up too.
	require.NoError(t, os.Remove(filepath.Join(dir, "index.json")))
	reopened := newFileBackend(t, FileConfig{BaseDir: dir, Compress: true})
	summaries, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
}

func TestFileConcurrentSaves(t *testing.T) {
	b := newFileBackend(t, FileConfig{})
	ctx := context.Background()
	base := time.Now().UTC()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(n int) {
			id := string(rune('a'+n))
			done <- b.Save(ctx, makeTrace("tr_par_"+id, "par", base, trace.StatusSuccess))
		}(i)
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	summaries, err := b.List(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 8)
}
