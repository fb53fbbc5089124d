package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprint-academy/internal/apiclient"
	"sprint-academy/internal/logger"
)

type fakeTTS struct {
	mu    sync.Mutex
	texts []string
	fail  string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if text == f.fail {
		return nil, errors.New("quota exceeded")
	}
	return []byte("ID3" + text), nil
}

func newBackend(t *testing.T) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/rest/v1/courses":
			json.NewEncoder(w).Encode([]map[string]string{{"id": "web", "title": "Web"}})
		case r.URL.Path == "/api/rest/v1/lessons":
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": "l1", "title": "Intro", "position": 1, "type": "video_text"},
				{"id": "l2", "title": "Play", "position": 2, "type": "code_generation"},
			})
		case strings.HasPrefix(r.URL.Path, "/api/lessons/l1/content"):
			json.NewEncoder(w).Encode(map[string]interface{}{
				"blocks": []map[string]string{
					{"type": "text", "text": "First paragraph"},
					{"type": "video", "url": "https://video.test"},
					{"type": "text", "text": "  "},
					{"type": "text", "text": "Second paragraph"},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	api, err := apiclient.New(srv.URL)
	require.NoError(t, err)
	return api
}

func TestRun_NarratesTextBlocks(t *testing.T) {
	out := t.TempDir()
	tts := &fakeTTS{}
	opts := options{outDir: out, workers: 2}

	require.NoError(t, run(context.Background(), logger.Nop(), newBackend(t), tts, opts))
	assert.ElementsMatch(t, []string{"First paragraph", "Second paragraph"}, tts.texts)

	data, err := os.ReadFile(filepath.Join(out, "l1-2.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "ID3Second paragraph", string(data))

	// Existing files are skipped on the next run.
	tts.texts = nil
	require.NoError(t, run(context.Background(), logger.Nop(), newBackend(t), tts, opts))
	assert.Empty(t, tts.texts)
}

func TestRun_ReportsFailures(t *testing.T) {
	out := t.TempDir()
	tts := &fakeTTS{fail: "First paragraph"}
	err := run(context.Background(), logger.Nop(), newBackend(t), tts, options{outDir: out, workers: 1})
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(out, "l1-1.mp3"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(out, "l1-2.mp3"))
	assert.NoError(t, statErr)
}
