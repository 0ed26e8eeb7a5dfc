// Package attach turns user-selected files into the inline text block
// appended to the outgoing provider payload. The stored transcript keeps
// file names only; the resolved content never touches History.
package attach

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ggufchat/chat-engine/internal/model"
	"github.com/ggufchat/chat-engine/pkg/logger"
	"github.com/ggufchat/chat-engine/pkg/metrics"
)

// MaxTotalBytes is the ceiling for one batch of attachments.
const MaxTotalBytes = 10 << 20

// allowedExtensions is the extraction allow-list.
var allowedExtensions = map[string]bool{
	".txt": true,
}

// Extractor extracts plain text from one attachment, typically by calling
// the remote extraction service. Any error moves the whole batch to the
// local fallback path.
type Extractor interface {
	Extract(ctx context.Context, handle model.AttachmentHandle) (string, error)
}

// Resolver validates a batch of attachments and renders them into the
// provider-facing text block.
type Resolver struct {
	extractor Extractor
	maxBytes  int64
	logger    *logger.Logger
}

// New creates a resolver. A nil extractor skips straight to local
// decoding; maxBytes <= 0 selects the default ceiling.
func New(extractor Extractor, maxBytes int64, log *logger.Logger) *Resolver {
	if maxBytes <= 0 {
		maxBytes = MaxTotalBytes
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Resolver{extractor: extractor, maxBytes: maxBytes, logger: log}
}

// Precheck validates the batch before any content is read: total size
// against the ceiling, every name against the extension allow-list.
func (r *Resolver) Precheck(handles []model.AttachmentHandle) error {
	var total int64
	for _, h := range handles {
		total += h.Size
	}
	if total > r.maxBytes {
		return &model.QuotaExceededError{Limit: r.maxBytes, Total: total}
	}
	for _, h := range handles {
		ext := strings.ToLower(filepath.Ext(h.Name))
		if !allowedExtensions[ext] {
			return &model.ValidationError{Message: fmt.Sprintf("unsupported file type %q for %s", ext, h.Name)}
		}
	}
	return nil
}

// Resolve validates the batch and renders the attachment block. With a
// configured extractor the whole batch goes remote first; any remote
// failure falls back to local decoding for every file. A file that
// cannot be decoded contributes an inline error marker instead of
// failing the batch.
func (r *Resolver) Resolve(ctx context.Context, handles []model.AttachmentHandle) (string, error) {
	if len(handles) == 0 {
		return "", nil
	}
	if err := r.Precheck(handles); err != nil {
		return "", err
	}

	source := "local"
	contents, err := r.extractRemote(ctx, handles)
	if err != nil {
		r.logger.Warn("remote extraction failed, decoding locally", zap.Error(err))
		contents = r.extractLocal(handles)
	} else if r.extractor != nil {
		source = "remote"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n\n--- Attached Files (%d) ---", len(handles))
	for i, h := range handles {
		if contents[i].err != nil {
			fmt.Fprintf(&b, "\n\n[File: %s - Error reading file]", h.Name)
			continue
		}
		fmt.Fprintf(&b, "\n\n[File: %s - %.1fKB]\n%s", h.Name, float64(h.Size)/1024, contents[i].text)
		metrics.AttachmentBytesTotal.WithLabelValues(source).Add(float64(h.Size))
	}
	b.WriteString("\n\n--- End of Files ---")
	return b.String(), nil
}

type extracted struct {
	text string
	err  error
}

func (r *Resolver) extractRemote(ctx context.Context, handles []model.AttachmentHandle) ([]extracted, error) {
	if r.extractor == nil {
		return r.extractLocal(handles), nil
	}
	out := make([]extracted, len(handles))
	for i, h := range handles {
		text, err := r.extractor.Extract(ctx, h)
		if err != nil {
			return nil, err
		}
		out[i] = extracted{text: text}
	}
	return out, nil
}

func (r *Resolver) extractLocal(handles []model.AttachmentHandle) []extracted {
	out := make([]extracted, len(handles))
	for i, h := range handles {
		if !utf8.Valid(h.Data) {
			out[i] = extracted{err: fmt.Errorf("not valid text: %s", h.Name)}
			continue
		}
		out[i] = extracted{text: string(h.Data)}
	}
	return out
}
