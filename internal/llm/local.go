package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/ggufchat/chat-engine/internal/model"
)

// LoadState is the local model server's load lifecycle.
type LoadState string

const (
	LoadStateUnloaded LoadState = "unloaded"
	LoadStateLoading  LoadState = "loading"
	LoadStateLoaded   LoadState = "loaded"
)

// DefaultLocalURL assumes the model server runs beside the process.
const DefaultLocalURL = "http://127.0.0.1:5001"

// LocalClient talks to the local model server. Completions are rejected
// client-side with ModelNotLoadedError unless a model has reached the
// Loaded state; the server is never asked to infer against nothing.
type LocalClient struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.Mutex
	state LoadState
	name  string
}

// NewLocalClient creates a client for the local model server. Local
// inference can be slow; timeout <= 0 selects a generous default.
func NewLocalClient(baseURL string, timeout time.Duration) *LocalClient {
	if baseURL == "" {
		baseURL = DefaultLocalURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LocalClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		state:      LoadStateUnloaded,
	}
}

// Name returns the provider name.
func (c *LocalClient) Name() string {
	return string(model.ProviderLocal)
}

// Models returns the currently loaded model, if any.
func (c *LocalClient) Models() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != LoadStateLoaded || c.name == "" {
		return nil
	}
	return []string{c.name}
}

// State reports the current load state and loaded model name.
func (c *LocalClient) State() (LoadState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.name
}

type localStatusResponse struct {
	Loaded bool   `json:"loaded"`
	Model  string `json:"model"`
}

// RefreshStatus asks the server which model is loaded and updates the
// local state machine to match.
func (c *LocalClient) RefreshStatus(ctx context.Context) (LoadState, string, error) {
	var status localStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/model/status", nil, &status); err != nil {
		return LoadStateUnloaded, "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if status.Loaded {
		c.state = LoadStateLoaded
		c.name = status.Model
	} else if c.state != LoadStateLoading {
		c.state = LoadStateUnloaded
		c.name = ""
	}
	return c.state, c.name, nil
}

// Load asks the server to load a model file and blocks until the server
// acknowledges. The state passes through Loading so concurrent status
// reads see the transition.
func (c *LocalClient) Load(ctx context.Context, name string) error {
	c.mu.Lock()
	if c.state == LoadStateLoading {
		c.mu.Unlock()
		return &model.BusyError{}
	}
	c.state = LoadStateLoading
	c.mu.Unlock()

	body := map[string]string{"model": name}
	err := c.doJSON(ctx, http.MethodPost, "/api/model/load", body, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = LoadStateUnloaded
		c.name = ""
		return err
	}
	c.state = LoadStateLoaded
	c.name = name
	return nil
}

// Unload releases the loaded model.
func (c *LocalClient) Unload(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/model/unload", nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.state = LoadStateUnloaded
	c.name = ""
	c.mu.Unlock()
	return nil
}

// Upload streams a model file to the server. The model still needs an
// explicit Load before it can serve completions.
func (c *LocalClient) Upload(ctx context.Context, filename string, data io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return fmt.Errorf("copy model data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/model/upload", &buf)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.NetworkError{Op: "upload model", Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readProviderError(resp)
	}
	return nil
}

type localChatRequest struct {
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
}

type localChatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Precheck rejects completions while no model is loaded.
func (c *LocalClient) Precheck(*CompletionRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != LoadStateLoaded {
		return &model.ModelNotLoadedError{}
	}
	return nil
}

// Complete sends the full transcript, system messages included, to the
// local server.
func (c *LocalClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := c.Precheck(req); err != nil {
		return nil, err
	}
	c.mu.Lock()
	name := c.name
	c.mu.Unlock()

	start := time.Now()
	body := localChatRequest{
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	var out localChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat/completions", body, &out); err != nil {
		return nil, err
	}

	respModel := out.Model
	if respModel == "" {
		respModel = name
	}
	return &CompletionResponse{
		Content:   out.Content,
		Model:     respModel,
		TokensIn:  out.Usage.PromptTokens,
		TokensOut: out.Usage.CompletionTokens,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func (c *LocalClient) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.NetworkError{Op: method + " " + path, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readProviderError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &model.NetworkError{Op: "decode " + path, Cause: err}
	}
	return nil
}

func readProviderError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(bytes.TrimSpace(data))
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
		msg = parsed.Error
	}
	if msg == "" {
		msg = resp.Status
	}
	return &model.ProviderError{Status: resp.StatusCode, Message: msg}
}
