// Package remote holds the HTTP clients for the external collaborators:
// the persistence service, the auth service and the file extraction
// service. All share one JSON transport helper; transport failures map to
// NetworkError and non-2xx responses to ProviderError.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ggufchat/chat-engine/internal/model"
)

type transport struct {
	baseURL    string
	httpClient *http.Client
}

func newTransport(baseURL string, timeout time.Duration) transport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return transport{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (t transport) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &model.NetworkError{Op: method + " " + path, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
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

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var parsed struct {
		Error string `json:"error"`
	}
	msg := resp.Status
	if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
		msg = parsed.Error
	}
	return &model.ProviderError{Status: resp.StatusCode, Message: msg}
}
