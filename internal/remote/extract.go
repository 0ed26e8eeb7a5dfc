package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/ggufchat/chat-engine/internal/model"
)

// ExtractClient sends one file to the remote extraction service and gets
// plain text back. It satisfies attach.Extractor.
type ExtractClient struct {
	transport
}

// NewExtractClient creates an extraction client for the given base URL.
func NewExtractClient(baseURL string, timeout time.Duration) *ExtractClient {
	return &ExtractClient{transport: newTransport(baseURL, timeout)}
}

type extractResponse struct {
	Content string `json:"content"`
}

// Extract uploads the file as multipart form data and returns the
// extracted text.
func (c *ExtractClient) Extract(ctx context.Context, handle model.AttachmentHandle) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", handle.Name)
	if err != nil {
		return "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(handle.Data); err != nil {
		return "", fmt.Errorf("write multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/file/upload", &buf)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &model.NetworkError{Op: "upload attachment", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp)
	}

	var out extractResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxExtractBytes)).Decode(&out); err != nil {
		return "", &model.NetworkError{Op: "decode extraction response", Cause: err}
	}
	return out.Content, nil
}

// MaxExtractBytes caps how much extracted text one file may return.
const MaxExtractBytes = 16 << 20
