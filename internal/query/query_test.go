package query

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocode/internal/config"
)

func testConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.LLM.BaseURL = baseURL
	cfg.LLM.Model = "test-model:latest"
	cfg.Snapshot.MaxDepth = 3
	cfg.Snapshot.MaxFiles = 50
	cfg.Snapshot.MaxFileSize = 1000000
	cfg.Tokens.Estimator = "heuristic"
	cfg.Tokens.Buffer = 1000
	cfg.Tokens.MaxContext = 128000
	cfg.Tokens.MinContext = 4096
	return cfg
}

// fakeOllama answers the full check + generate flow and counts requests.
func fakeOllama(t *testing.T, answer string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"version": "0.5.0"})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "test-model:latest"}},
		})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"response": answer, "done": true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRunTargetNotFound(t *testing.T) {
	srv, hits := fakeOllama(t, "unused")
	r := NewRunner(testConfig(srv.URL), log.New(io.Discard))

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "nope"), "question", Options{Out: io.Discard})
	require.ErrorIs(t, err, ErrTargetNotFound)

	// No HTTP request was issued for a missing target.
	assert.Zero(t, hits.Load())
}

func TestRunFileTarget(t *testing.T) {
	srv, _ := fakeOllama(t, "it prints hello")
	r := NewRunner(testConfig(srv.URL), log.New(io.Discard))

	dir := t.TempDir()
	target := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(target, []byte("package main\n"), 0644))

	res, err := r.Run(context.Background(), target, "what does this do?", Options{Out: io.Discard})
	require.NoError(t, err)

	assert.Equal(t, "it prints hello", res.Answer)
	assert.Equal(t, "llm", res.Source)
	assert.Positive(t, res.EstimatedTokens)
	assert.Equal(t, 4096, res.ContextSize)
}

func TestRunDirectoryTarget(t *testing.T) {
	var gotPrompt string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"version": "0.5.0"})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "test-model:latest"}},
		})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "Hello!" {
			gotPrompt = req.Prompt
		}
		json.NewEncoder(w).Encode(map[string]any{"response": "ok", "done": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha-body"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("hidden-body"), 0644))

	r := NewRunner(testConfig(srv.URL), log.New(io.Discard))
	_, err := r.Run(context.Background(), dir, "summarize", Options{Out: io.Discard})
	require.NoError(t, err)

	assert.Contains(t, gotPrompt, "alpha-body")
	assert.Contains(t, gotPrompt, "===== a.txt =====")
	assert.Contains(t, gotPrompt, "Query: summarize")
	assert.NotContains(t, gotPrompt, "hidden-body")
}

func TestRunGenerateError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"version": "0.5.0"})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "test-model:latest"}},
		})
	})
	var generateCalls atomic.Int64
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		// Let the trivial check prompt pass, then fail the real query.
		if generateCalls.Add(1) == 1 {
			json.NewEncoder(w).Encode(map[string]any{"response": "ok", "done": true})
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	target := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("body"), 0644))

	var out strings.Builder
	r := NewRunner(testConfig(srv.URL), log.New(io.Discard))
	_, err := r.Run(context.Background(), target, "q", Options{Out: &out})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Empty(t, out.String())
}

func TestRunPreflightFailureAborts(t *testing.T) {
	// Server with no models: the model check fails and the real query is
	// never sent.
	var generateCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"version": "0.5.0"})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"models": []map[string]string{}})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		generateCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"response": "ok", "done": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	target := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("body"), 0644))

	r := NewRunner(testConfig(srv.URL), log.New(io.Discard))
	_, err := r.Run(context.Background(), target, "q", Options{Out: io.Discard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not ready")
	assert.Zero(t, generateCalls.Load())
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("package main", "what is this?", "/tmp/project/main.go")

	assert.Contains(t, prompt, "===== main.go =====")
	assert.Contains(t, prompt, "package main")
	assert.Contains(t, prompt, "Query: what is this?")
	assert.True(t, strings.HasPrefix(prompt, "I'll provide code from my project"))
}

func TestBuildPromptEmptyContent(t *testing.T) {
	prompt := BuildPrompt("", "q", "/tmp/x")
	assert.NotContains(t, prompt, "===== x =====")
	assert.Contains(t, prompt, "Query: q")
}
