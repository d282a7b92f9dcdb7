package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlens/agentlens/internal/trace"
)

func TestRemoteSavePostsRecord(t *testing.T) {
	var got trace.Trace
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/traces/tr_remote", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewRemoteBackend(RemoteConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	want := makeTrace("tr_remote", "shipped", time.Now().UTC(), trace.StatusSuccess)
	require.NoError(t, b.Save(context.Background(), want))
	assert.Equal(t, "tr_remote", got.TraceID)
	assert.Equal(t, "shipped", got.Name)
}

func TestRemoteSaveRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewRemoteBackend(RemoteConfig{BaseURL: srv.URL, MaxRetries: 2}, nil)
	require.NoError(t, err)

	err = b.Save(context.Background(), makeTrace("tr_flaky", "flaky", time.Now().UTC(), trace.StatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRemoteLoad(t *testing.T) {
	want := makeTrace("tr_fetch", "fetched", time.Now().UTC(), trace.StatusSuccess)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/api/trace/tr_fetch"):
			_ = json.NewEncoder(w).Encode(want)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"trace not found: nope"}`))
		}
	}))
	defer srv.Close()

	b, err := NewRemoteBackend(RemoteConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	got, err := b.Load(context.Background(), "tr_fetch")
	require.NoError(t, err)
	assert.Equal(t, "tr_fetch", got.TraceID)

	_, err = b.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/traces", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]trace.Summary{
			{TraceID: "tr_b", Name: "b"},
			{TraceID: "tr_a", Name: "a"},
		})
	}))
	defer srv.Close()

	b, err := NewRemoteBackend(RemoteConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	summaries, err := b.List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "tr_b", summaries[0].TraceID)
}

func TestRemoteRequiresBaseURL(t *testing.T) {
	_, err := NewRemoteBackend(RemoteConfig{}, nil)
	assert.Error(t, err)
}
