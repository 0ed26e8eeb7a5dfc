package attach

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggufchat/chat-engine/internal/model"
)

type fakeExtractor struct {
	texts map[string]string
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, handle model.AttachmentHandle) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.texts[handle.Name], nil
}

func handle(name, content string) model.AttachmentHandle {
	return model.AttachmentHandle{Name: name, Size: int64(len(content)), Data: []byte(content)}
}

func TestPrecheckRejectsOversizedBatch(t *testing.T) {
	r := New(nil, 100, nil)

	err := r.Precheck([]model.AttachmentHandle{
		{Name: "a.txt", Size: 60},
		{Name: "b.txt", Size: 60},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrQuotaExceeded))

	var quota *model.QuotaExceededError
	require.True(t, errors.As(err, &quota))
	assert.Equal(t, int64(100), quota.Limit)
	assert.Equal(t, int64(120), quota.Total)
}

func TestPrecheckRejectsDisallowedExtension(t *testing.T) {
	r := New(nil, 0, nil)

	err := r.Precheck([]model.AttachmentHandle{{Name: "binary.exe", Size: 10}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrValidation))

	assert.NoError(t, r.Precheck([]model.AttachmentHandle{{Name: "NOTES.TXT", Size: 10}}))
}

func TestResolveEmptyBatch(t *testing.T) {
	r := New(nil, 0, nil)
	block, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, block)
}

func TestResolveBlockFormat(t *testing.T) {
	r := New(nil, 0, nil)

	a := handle("a.txt", "alpha contents")
	b := handle("b.txt", "beta contents")

	block, err := r.Resolve(context.Background(), []model.AttachmentHandle{a, b})
	require.NoError(t, err)

	want := "\n\n--- Attached Files (2) ---" +
		fmt.Sprintf("\n\n[File: a.txt - %.1fKB]\nalpha contents", float64(a.Size)/1024) +
		fmt.Sprintf("\n\n[File: b.txt - %.1fKB]\nbeta contents", float64(b.Size)/1024) +
		"\n\n--- End of Files ---"
	assert.Equal(t, want, block)
}

func TestResolveMarksUndecodableFile(t *testing.T) {
	r := New(nil, 0, nil)

	bad := model.AttachmentHandle{Name: "bad.txt", Size: 2, Data: []byte{0xff, 0xfe}}
	block, err := r.Resolve(context.Background(), []model.AttachmentHandle{handle("good.txt", "fine"), bad})
	require.NoError(t, err)

	assert.Contains(t, block, "[File: bad.txt - Error reading file]")
	assert.Contains(t, block, "fine")
}

func TestResolvePrefersRemoteExtraction(t *testing.T) {
	ex := &fakeExtractor{texts: map[string]string{"a.txt": "extracted remotely"}}
	r := New(ex, 0, nil)

	block, err := r.Resolve(context.Background(), []model.AttachmentHandle{handle("a.txt", "raw local")})
	require.NoError(t, err)
	assert.Contains(t, block, "extracted remotely")
	assert.NotContains(t, block, "raw local")
	assert.Equal(t, 1, ex.calls)
}

func TestResolveFallsBackToLocalOnRemoteFailure(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("extraction service down")}
	r := New(ex, 0, nil)

	block, err := r.Resolve(context.Background(), []model.AttachmentHandle{handle("a.txt", "raw local")})
	require.NoError(t, err)
	assert.Contains(t, block, "raw local")
}
