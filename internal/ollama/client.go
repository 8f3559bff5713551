package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"ocode/internal/config"
)

// checkTimeout bounds each pre-flight request. The generate call itself
// uses the configured timeout (zero means wait indefinitely).
const checkTimeout = 10 * time.Second

// GenerateRequest is the /api/generate request body.
type GenerateRequest struct {
	Model   string   `json:"model"`
	Prompt  string   `json:"prompt"`
	Stream  bool     `json:"stream"`
	Options *Options `json:"options,omitempty"`
}

// Options carries the sampling parameters and context window size.
type Options struct {
	NumCtx      int     `json:"num_ctx,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// GenerateResponse is a single /api/generate body, or one fragment of a
// streaming response.
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type versionResponse struct {
	Version string `json:"version"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ModelInfo describes one model reported by /api/tags.
type ModelInfo struct {
	Name string `json:"name"`
}

// Client talks to a locally running Ollama server.
type Client struct {
	baseURL     string
	model       string
	options     Options
	httpClient  *http.Client
	checkClient *http.Client
	logger      *log.Logger
}

func NewClient(cfg *config.Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.LLM.BaseURL, "/"),
		model:   cfg.LLM.Model,
		options: Options{
			Temperature: cfg.LLM.Temperature,
			TopK:        cfg.LLM.TopK,
			TopP:        cfg.LLM.TopP,
		},
		httpClient:  &http.Client{Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second},
		checkClient: &http.Client{Timeout: checkTimeout},
		logger:      logger,
	}
}

// Model returns the target model name.
func (c *Client) Model() string {
	return c.model
}

// Version fetches the server version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.checkClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Ollama server is not responding correctly (status %d)", resp.StatusCode)
	}

	var v versionResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// Models lists the model names available on the server.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.checkClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get model list from Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get model list from Ollama (status %d)", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// CheckStatus verifies the server is reachable, the target model is
// present and a trivial prompt succeeds. The returned error names the
// check that failed; nil means the server is fully operational.
func (c *Client) CheckStatus(ctx context.Context) error {
	version, err := c.Version(ctx)
	if err != nil {
		return fmt.Errorf("version check: %w", err)
	}
	c.logger.Debug("ollama version", "version", version)

	models, err := c.Models(ctx)
	if err != nil {
		return fmt.Errorf("model check: %w", err)
	}
	c.logger.Debug("available models", "models", models)

	found := false
	for _, name := range models {
		if name == c.model {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("model check: required model %q is not available (have: %s)",
			c.model, strings.Join(models, ", "))
	}

	// Model load on a cold server can be slow, so the trivial prompt
	// uses the generate client rather than the short check timeout.
	if _, err := c.generate(ctx, c.httpClient, GenerateRequest{
		Model:  c.model,
		Prompt: "Hello!",
		Stream: false,
	}, nil); err != nil {
		return fmt.Errorf("model test: %w", err)
	}

	return nil
}

// Generate sends prompt with the given context window size. In streaming
// mode each response fragment is written to out as it arrives; in both
// modes the full response text is returned.
func (c *Client) Generate(ctx context.Context, prompt string, numCtx int, stream bool, out io.Writer) (string, error) {
	opts := c.options
	opts.NumCtx = numCtx

	return c.generate(ctx, c.httpClient, GenerateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  stream,
		Options: &opts,
	}, out)
}

func (c *Client) generate(ctx context.Context, httpClient *http.Client, reqBody GenerateRequest, out io.Writer) (string, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}
	c.logger.Debug("sending generate request", "bytes", len(jsonData), "stream", reqBody.Stream)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Ollama API error %d: %s", resp.StatusCode, string(body))
	}

	if reqBody.Stream {
		return c.consumeStream(resp.Body, out)
	}

	var response GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", err
	}
	return response.Response, nil
}

// consumeStream reads newline-delimited JSON fragments, relaying each
// response piece to out. Malformed fragments are skipped.
func (c *Client) consumeStream(body io.Reader, out io.Writer) (string, error) {
	var full strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk GenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			c.logger.Debug("failed to decode stream fragment", "err", err)
			continue
		}

		full.WriteString(chunk.Response)
		if out != nil {
			fmt.Fprint(out, chunk.Response)
		}
	}

	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("stream read error: %w", err)
	}
	return full.String(), nil
}
