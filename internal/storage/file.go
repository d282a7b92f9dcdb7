package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/agentlens/agentlens/internal/shared/validate"
	"github.com/agentlens/agentlens/internal/trace"
)

const (
	recordsDirName = "traces"
	indexFileName  = "index.json"

	recordExt     = ".json"
	compressedExt = ".json.gz"
)

// FileConfig configures a FileBackend.
type FileConfig struct {
	// BaseDir is the storage root. Records live under BaseDir/traces,
	// the index at BaseDir/index.json.
	BaseDir string

	// Compress gzips trace records on disk. The index stays plain JSON
	// so it remains inspectable.
	Compress bool

	// MaxIndexEntries caps the index. Records beyond the cap stay on
	// disk and remain loadable by ID; they just fall off listings.
	// Zero means the default of 1000.
	MaxIndexEntries int
}

// FileBackend stores one record file per trace plus a summary index.
// Writes are ordered record-first, so a crash between the two leaves an
// orphan record (re-indexed at startup) rather than a dangling index
// entry.
type FileBackend struct {
	cfg    FileConfig
	logger *zap.Logger

	// indexMu serializes all index mutations; record files for
	// different traces need no coordination.
	indexMu sync.Mutex
}

type indexDocument struct {
	Traces []trace.Summary `json:"traces"`
}

// NewFileBackend creates the storage layout under cfg.BaseDir and
// reconciles the index against the record files on disk.
func NewFileBackend(cfg FileConfig, logger *zap.Logger) (*FileBackend, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("storage base directory is required")
	}
	if cfg.MaxIndexEntries <= 0 {
		cfg.MaxIndexEntries = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &FileBackend{cfg: cfg, logger: logger}
	if err := os.MkdirAll(b.recordsDir(), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}
	if err := b.Reconcile(); err != nil {
		return nil, fmt.Errorf("failed to reconcile trace index: %w", err)
	}
	return b, nil
}

// Save writes the trace record, then updates the index.
func (b *FileBackend) Save(_ context.Context, tr *trace.Trace) error {
	if tr == nil {
		return fmt.Errorf("trace is required")
	}
	if err := validate.TraceID(tr.TraceID); err != nil {
		return err
	}

	data, err := sonic.Marshal(tr)
	if err != nil {
		return fmt.Errorf("failed to marshal trace %s: %w", tr.TraceID, err)
	}

	if err := b.writeAtomic(b.recordPath(tr.TraceID), data, b.cfg.Compress); err != nil {
		return fmt.Errorf("failed to write trace %s: %w", tr.TraceID, err)
	}

	if err := b.updateIndex(tr.Summary()); err != nil {
		return fmt.Errorf("failed to index trace %s: %w", tr.TraceID, err)
	}
	return nil
}

// Load reads one trace record by ID. IDs that could not have been
// written by Save report ErrNotFound without touching the filesystem.
func (b *FileBackend) Load(_ context.Context, traceID string) (*trace.Trace, error) {
	if err := validate.TraceID(traceID); err != nil {
		return nil, ErrNotFound
	}

	data, err := b.readRecord(traceID)
	if err != nil {
		return nil, err
	}

	var tr trace.Trace
	if err := sonic.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace %s: %w", traceID, err)
	}
	if tr.TraceID == "" {
		return nil, fmt.Errorf("trace record %s has empty trace_id", traceID)
	}
	return &tr, nil
}

// List returns the indexed summaries. A missing or corrupt index is
// rebuilt from the record files before answering.
func (b *FileBackend) List(_ context.Context) ([]trace.Summary, error) {
	b.indexMu.Lock()
	defer b.indexMu.Unlock()

	doc, err := b.readIndex()
	if err != nil {
		b.logger.Warn("trace index unreadable, rebuilding", zap.Error(err))
		doc, err = b.rebuildIndexLocked()
		if err != nil {
			return nil, err
		}
	}
	if doc.Traces == nil {
		return []trace.Summary{}, nil
	}
	return doc.Traces, nil
}

// Reconcile rebuilds index state from the record files: orphan records
// (written before a crash cut off the index update) are re-indexed, and
// entries whose record file is gone are dropped.
func (b *FileBackend) Reconcile() error {
	b.indexMu.Lock()
	defer b.indexMu.Unlock()

	onDisk, err := b.scanRecordIDs()
	if err != nil {
		return err
	}

	doc, err := b.readIndex()
	if err != nil {
		if !os.IsNotExist(err) {
			b.logger.Warn("trace index corrupt, rebuilding from records", zap.Error(err))
		}
		doc = indexDocument{}
	}

	indexed := make(map[string]bool, len(doc.Traces))
	kept := doc.Traces[:0]
	dirty := false
	for _, s := range doc.Traces {
		if !onDisk[s.TraceID] {
			dirty = true
			continue
		}
		indexed[s.TraceID] = true
		kept = append(kept, s)
	}
	doc.Traces = kept

	for id := range onDisk {
		if indexed[id] {
			continue
		}
		summary, err := b.summarizeRecord(id)
		if err != nil {
			b.logger.Warn("skipping unreadable trace record",
				zap.String("trace_id", id), zap.Error(err))
			continue
		}
		doc.Traces = append(doc.Traces, summary)
		dirty = true
	}

	if !dirty {
		if _, err := os.Stat(b.indexPath()); err == nil {
			return nil
		}
	}
	sortSummaries(doc.Traces)
	return b.writeIndexLocked(doc)
}

func (b *FileBackend) updateIndex(summary trace.Summary) error {
	b.indexMu.Lock()
	defer b.indexMu.Unlock()

	doc, err := b.readIndex()
	if err != nil {
		if !os.IsNotExist(err) {
			b.logger.Warn("trace index unreadable on save, rewriting", zap.Error(err))
		}
		doc = indexDocument{}
	}

	entries := make([]trace.Summary, 0, len(doc.Traces)+1)
	entries = append(entries, summary)
	for _, s := range doc.Traces {
		if s.TraceID != summary.TraceID {
			entries = append(entries, s)
		}
	}
	// Keep the index in listing order so saves and rebuilds agree on
	// which entries the cap evicts.
	sortSummaries(entries)
	if len(entries) > b.cfg.MaxIndexEntries {
		entries = entries[:b.cfg.MaxIndexEntries]
	}
	doc.Traces = entries
	return b.writeIndexLocked(doc)
}

// rebuildIndexLocked regenerates the whole index from record files.
// Caller holds indexMu.
func (b *FileBackend) rebuildIndexLocked() (indexDocument, error) {
	onDisk, err := b.scanRecordIDs()
	if err != nil {
		return indexDocument{}, err
	}

	doc := indexDocument{Traces: []trace.Summary{}}
	for traceID := range onDisk {
		summary, err := b.summarizeRecord(traceID)
		if err != nil {
			b.logger.Warn("skipping unreadable trace record",
				zap.String("trace_id", traceID), zap.Error(err))
			continue
		}
		doc.Traces = append(doc.Traces, summary)
	}
	sortSummaries(doc.Traces)

	if err := b.writeIndexLocked(doc); err != nil {
		return indexDocument{}, err
	}
	return doc, nil
}

func (b *FileBackend) summarizeRecord(traceID string) (trace.Summary, error) {
	tr, err := b.Load(context.Background(), traceID)
	if err != nil {
		return trace.Summary{}, err
	}
	return tr.Summary(), nil
}

func (b *FileBackend) readIndex() (indexDocument, error) {
	data, err := os.ReadFile(b.indexPath())
	if err != nil {
		return indexDocument{}, err
	}
	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return indexDocument{}, fmt.Errorf("failed to parse index: %w", err)
	}
	return doc, nil
}

// writeIndexLocked writes the index atomically. Caller holds indexMu.
func (b *FileBackend) writeIndexLocked(doc indexDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	return b.writeAtomic(b.indexPath(), data, false)
}

func (b *FileBackend) readRecord(traceID string) ([]byte, error) {
	path := b.recordPath(traceID)

	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read trace %s: %w", traceID, err)
	}

	f, err := os.Open(path + ".gz")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read trace %s: %w", traceID, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress trace %s: %w", traceID, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress trace %s: %w", traceID, err)
	}
	return data, nil
}

// writeAtomic writes via a temp file in the destination directory and
// renames it into place.
func (b *FileBackend) writeAtomic(path string, data []byte, compress bool) error {
	if compress {
		path += ".gz"
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	write := func() error {
		if !compress {
			_, err := tmp.Write(data)
			return err
		}
		zw := gzip.NewWriter(tmp)
		if _, err := zw.Write(data); err != nil {
			return err
		}
		return zw.Close()
	}

	if err := write(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// scanRecordIDs lists the trace IDs that have record files on disk.
func (b *FileBackend) scanRecordIDs() (map[string]bool, error) {
	entries, err := os.ReadDir(b.recordsDir())
	if err != nil {
		return nil, fmt.Errorf("failed to scan trace directory: %w", err)
	}

	ids := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, compressedExt):
			ids[strings.TrimSuffix(name, compressedExt)] = true
		case strings.HasSuffix(name, recordExt):
			ids[strings.TrimSuffix(name, recordExt)] = true
		}
	}
	return ids, nil
}

func sortSummaries(entries []trace.Summary) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartTime.After(entries[j].StartTime)
	})
}

func (b *FileBackend) recordsDir() string {
	return filepath.Join(b.cfg.BaseDir, recordsDirName)
}

func (b *FileBackend) indexPath() string {
	return filepath.Join(b.cfg.BaseDir, indexFileName)
}

func (b *FileBackend) recordPath(traceID string) string {
	return filepath.Join(b.recordsDir(), traceID+recordExt)
}
