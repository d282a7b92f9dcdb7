package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/agentlens/agentlens/internal/infrastructure/logging"
	"github.com/agentlens/agentlens/internal/trace"
)

// RemoteConfig controls the remote backend.
type RemoteConfig struct {
	// BaseURL is the peer server address, e.g. "http://collector:8000".
	BaseURL string
	// Timeout bounds each HTTP attempt. Defaults to 10s.
	Timeout time.Duration
	// MaxRetries is the retry budget per request. Defaults to 3.
	MaxRetries int
}

// RemoteBackend ships traces to a peer collector over HTTP and reads
// them back through its query API. Transient failures are retried with
// exponential backoff.
type RemoteBackend struct {
	baseURL string
	client  *retryablehttp.Client
}

// NewRemoteBackend creates a backend targeting the collector at cfg.BaseURL.
func NewRemoteBackend(cfg RemoteConfig, logger *logging.Logger) (*RemoteBackend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = nil
	if logger != nil {
		client.Logger = retryableLogger{logger: logger}
	}

	return &RemoteBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}, nil
}

// Save posts the trace record to the collector.
func (b *RemoteBackend) Save(ctx context.Context, tr *trace.Trace) error {
	if tr == nil || tr.TraceID == "" {
		return fmt.Errorf("trace ID is required")
	}
	data, err := sonic.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal trace %s: %w", tr.TraceID, err)
	}

	url := fmt.Sprintf("%s/api/traces/%s", b.baseURL, tr.TraceID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("post trace %s: %w", tr.TraceID, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("post trace %s: unexpected status %d", tr.TraceID, resp.StatusCode)
	}
	return nil
}

// Load fetches a single trace from the collector's query API.
func (b *RemoteBackend) Load(ctx context.Context, traceID string) (*trace.Trace, error) {
	url := fmt.Sprintf("%s/api/trace/%s", b.baseURL, traceID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get trace %s: %w", traceID, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get trace %s: unexpected status %d", traceID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", traceID, err)
	}
	var tr trace.Trace
	if err := sonic.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode trace %s: %w", traceID, err)
	}
	return &tr, nil
}

// List fetches summaries from the collector's query API.
func (b *RemoteBackend) List(ctx context.Context) ([]trace.Summary, error) {
	url := b.baseURL + "/api/traces"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list traces: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read summaries: %w", err)
	}
	summaries := []trace.Summary{}
	if err := sonic.Unmarshal(body, &summaries); err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}
	return summaries, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// retryableLogger adapts the structured logger to retryablehttp's
// leveled interface.
type retryableLogger struct {
	logger *logging.Logger
}

func (l retryableLogger) Error(msg string, kv ...interface{}) { l.logger.Sugar().Errorw(msg, kv...) }
func (l retryableLogger) Info(msg string, kv ...interface{})  { l.logger.Sugar().Infow(msg, kv...) }
func (l retryableLogger) Debug(msg string, kv ...interface{}) { l.logger.Sugar().Debugw(msg, kv...) }
func (l retryableLogger) Warn(msg string, kv ...interface{})  { l.logger.Sugar().Warnw(msg, kv...) }
