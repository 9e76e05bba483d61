package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/futurenews/internal/infra"
	"github.com/seenimoa/futurenews/pkg/logger"
)

const modelsCacheKey = "models"

// OllamaClient talks to a local Ollama instance.
type OllamaClient struct {
	baseURL      string
	model        string
	client       *http.Client // batch calls, bounded timeout
	streamClient *http.Client // streaming calls, no overall timeout
	idleTimeout  time.Duration
	models       *infra.TTLCache[[]string]
	log          *zap.Logger
}

// OllamaOption configures the Ollama client.
type OllamaOption func(*OllamaClient)

// WithModel sets the default model.
func WithModel(model string) OllamaOption {
	return func(c *OllamaClient) { c.model = model }
}

// WithTimeout bounds batch generation and model listing calls.
func WithTimeout(d time.Duration) OllamaOption {
	return func(c *OllamaClient) { c.client.Timeout = d }
}

// WithHTTPClient sets the client used for batch calls.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(c *OllamaClient) { c.client = client }
}

// WithStreamHTTPClient sets the client used for streaming calls.
func WithStreamHTTPClient(client *http.Client) OllamaOption {
	return func(c *OllamaClient) { c.streamClient = client }
}

// WithStreamIdleTimeout aborts a stream when no data arrives for d.
// Zero disables the idle check.
func WithStreamIdleTimeout(d time.Duration) OllamaOption {
	return func(c *OllamaClient) { c.idleTimeout = d }
}

// WithModelsTTL caches successful model listings for d.
func WithModelsTTL(d time.Duration) OllamaOption {
	return func(c *OllamaClient) { c.models = infra.NewTTLCache[[]string](d) }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) OllamaOption {
	return func(c *OllamaClient) { c.log = logger.OrNop(l) }
}

// NewOllamaClient creates a client for the Ollama server at baseURL
// (e.g., "http://localhost:11434").
func NewOllamaClient(baseURL string, opts ...OllamaOption) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	c := &OllamaClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        "llama3",
		client:       &http.Client{Timeout: 60 * time.Second},
		streamClient: &http.Client{},
		idleTimeout:  2 * time.Minute,
		models:       infra.NewTTLCache[[]string](time.Minute),
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultModel returns the configured default model name.
func (c *OllamaClient) DefaultModel() string { return c.model }

// Ping checks if the Ollama server is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrProviderDown, resp.StatusCode)
	}
	return nil
}

// ListModels returns the names in the model registry. It never fails: on
// any error, or an empty registry, it returns the default model alone.
func (c *OllamaClient) ListModels(ctx context.Context) []string {
	if cached, ok := c.models.Get(modelsCacheKey); ok {
		return append([]string(nil), cached...)
	}

	names, err := c.fetchModels(ctx)
	if err != nil {
		c.log.Error("listing models failed, using default", zap.String("model", c.model), zap.Error(err))
		return []string{c.model}
	}
	if len(names) == 0 {
		return []string{c.model}
	}
	c.models.Set(modelsCacheKey, names)
	return append([]string(nil), names...)
}

// InvalidateModels drops the cached model list so the next ListModels call
// queries the registry.
func (c *OllamaClient) InvalidateModels() {
	c.models.Invalidate(modelsCacheKey)
}

func (c *OllamaClient) fetchModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: decode tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// Generate submits a prompt and returns the complete response text.
// Transport failures and non-200 statuses are returned as errors.
func (c *OllamaClient) Generate(ctx context.Context, gr GenerateRequest) (string, error) {
	start := time.Now()
	resp, err := c.post(ctx, c.client, gr, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	c.log.Debug("generation complete",
		zap.String("model", result.Model),
		zap.Int("eval_count", result.EvalCount),
		zap.Duration("latency", time.Since(start)),
	)
	return derefString(result.Response), nil
}

// Stream submits a prompt with incremental delivery. The returned channel
// yields text fragments as they arrive and is closed when the connection
// ends. Cancelling ctx closes the connection and stops production.
func (c *OllamaClient) Stream(ctx context.Context, gr GenerateRequest) (<-chan Fragment, error) {
	ctx, cancel := context.WithCancel(ctx)
	resp, err := c.post(ctx, c.streamClient, gr, true)
	if err != nil {
		cancel()
		return nil, err
	}

	ch := make(chan Fragment, 16)
	go c.readStream(ctx, cancel, resp.Body, ch)
	return ch, nil
}

// ── Internal Types ──

type ollamaGenerateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	System  string  `json:"system,omitempty"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type ollamaGenerateResponse struct {
	Model     string  `json:"model"`
	Response  *string `json:"response"`
	Done      bool    `json:"done"`
	Error     string  `json:"error,omitempty"`
	EvalCount int     `json:"eval_count"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ── Helpers ──

func (c *OllamaClient) resolveModel(model string) string {
	if model != "" {
		return model
	}
	return c.model
}

func (c *OllamaClient) post(ctx context.Context, client *http.Client, gr GenerateRequest, stream bool) (*http.Response, error) {
	body := ollamaGenerateRequest{
		Model:   c.resolveModel(gr.Model),
		Prompt:  gr.Prompt,
		System:  gr.System,
		Stream:  stream,
		Options: gr.Options,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		err := statusError(resp)
		c.log.Error("generation endpoint returned error status", zap.Int("status", resp.StatusCode), zap.Error(err))
		if resp.StatusCode == http.StatusNotFound {
			// The model was removed or never pulled; the cached list is stale.
			c.InvalidateModels()
		}
		return nil, err
	}
	return resp, nil
}

// readStream turns NDJSON lines into fragments. Lines that do not parse are
// skipped; lines without a response field yield nothing. The idle timer only
// runs while waiting on the model, never while a send waits on the consumer.
func (c *OllamaClient) readStream(ctx context.Context, cancel context.CancelFunc, body io.ReadCloser, ch chan<- Fragment) {
	defer close(ch)
	defer cancel()
	defer body.Close()

	var idleFired atomic.Bool
	var idle *time.Timer
	if c.idleTimeout > 0 {
		idle = time.AfterFunc(c.idleTimeout, func() {
			idleFired.Store(true)
			cancel()
		})
		defer idle.Stop()
	}

	scanner := bufio.NewScanner(body)
	// Ollama may return large lines; increase buffer
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	c.scan(ctx, scanner, idle, ch)

	err := scanner.Err()
	switch {
	case idleFired.Load():
		err = ErrStreamIdle
	case err == nil, ctx.Err() != nil:
		return
	}
	c.log.Warn("stream ended with error", zap.Error(err))
	select {
	case ch <- Fragment{Err: fmt.Errorf("ollama: stream read: %w", err)}:
	case <-time.After(max(c.idleTimeout, time.Second)):
	}
}

// scan relays lines until the body ends, the context is cancelled or the
// idle timer fires.
func (c *OllamaClient) scan(ctx context.Context, scanner *bufio.Scanner, idle *time.Timer, ch chan<- Fragment) {
	for scanner.Scan() {
		if idle != nil && !idle.Stop() {
			return // fired while the line was arriving
		}
		if c.relay(ctx, scanner.Bytes(), ch) != nil {
			return
		}
		if idle != nil {
			idle.Reset(c.idleTimeout)
		}
	}
}

// relay sends the fragment carried by one NDJSON line, if any.
func (c *OllamaClient) relay(ctx context.Context, raw []byte, ch chan<- Fragment) error {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return nil
	}

	var chunk ollamaGenerateResponse
	if err := json.Unmarshal(line, &chunk); err != nil {
		c.log.Debug("skipping malformed stream chunk", zap.Error(err))
		return nil
	}
	if chunk.Error != "" {
		c.log.Warn("stream chunk carried an error", zap.String("error", chunk.Error))
	}
	if chunk.Response == nil {
		return nil
	}

	select {
	case ch <- Fragment{Text: *chunk.Response}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// IsTransportError reports whether err came from the transport or a
// non-success status rather than from content handling.
func IsTransportError(err error) bool {
	var se *StatusError
	return errors.Is(err, ErrProviderDown) || errors.As(err, &se)
}
