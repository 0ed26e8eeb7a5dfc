package model

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is implemented by errors that map to an HTTP status code,
// letting the handler layer translate engine errors without type switches.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors for use with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrMissingCredential = errors.New("missing credential")
	ErrModelNotLoaded    = errors.New("model not loaded")
	ErrNotFound          = errors.New("not found")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrNetwork           = errors.New("network failure")
	ErrBusy              = errors.New("busy")
	ErrPrecondition      = errors.New("precondition failed")
)

type (
	// ValidationError indicates bad input, rejected before any network effect.
	ValidationError struct {
		Message string
	}

	// MissingCredentialError indicates a cloud provider has no API key.
	MissingCredentialError struct {
		Provider Provider
	}

	// ModelNotLoadedError indicates a send was attempted while the local
	// model is not in the loaded state.
	ModelNotLoadedError struct{}

	// NotFoundError indicates an unknown conversation id.
	NotFoundError struct {
		ID string
	}

	// QuotaExceededError indicates an attachment batch over the size ceiling.
	QuotaExceededError struct {
		Limit int64
		Total int64
	}

	// NetworkError indicates a transport failure talking to a collaborator.
	NetworkError struct {
		Op    string
		Cause error
	}

	// ProviderError indicates the remote provider rejected the request.
	ProviderError struct {
		Status  int
		Message string
	}

	// BusyError indicates a concurrent turn was attempted while a previous
	// turn's generation is still in progress.
	BusyError struct{}

	// PreconditionError indicates the session is not ready for the
	// attempted operation.
	PreconditionError struct {
		Message string
	}
)

func (e *ValidationError) Error() string { return e.Message }
func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("%s API key is required", e.Provider)
}
func (e *ModelNotLoadedError) Error() string { return "no model loaded" }
func (e *NotFoundError) Error() string       { return fmt.Sprintf("conversation %s not found", e.ID) }
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("attachments exceed %d bytes (got %d)", e.Limit, e.Total)
}
func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return e.Op
}
func (e *NetworkError) Unwrap() error { return e.Cause }
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected request (status %d): %s", e.Status, e.Message)
}
func (e *BusyError) Error() string         { return "a response is already being generated" }
func (e *PreconditionError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool        { return target == ErrValidation }
func (e *MissingCredentialError) Is(target error) bool { return target == ErrMissingCredential }
func (e *ModelNotLoadedError) Is(target error) bool    { return target == ErrModelNotLoaded }
func (e *NotFoundError) Is(target error) bool          { return target == ErrNotFound }
func (e *QuotaExceededError) Is(target error) bool     { return target == ErrQuotaExceeded }
func (e *NetworkError) Is(target error) bool           { return target == ErrNetwork }
func (e *BusyError) Is(target error) bool              { return target == ErrBusy }
func (e *PreconditionError) Is(target error) bool      { return target == ErrPrecondition }

func (e *ValidationError) StatusCode() int        { return http.StatusBadRequest }
func (e *MissingCredentialError) StatusCode() int { return http.StatusUnauthorized }
func (e *ModelNotLoadedError) StatusCode() int    { return http.StatusConflict }
func (e *NotFoundError) StatusCode() int          { return http.StatusNotFound }
func (e *QuotaExceededError) StatusCode() int     { return http.StatusRequestEntityTooLarge }
func (e *NetworkError) StatusCode() int           { return http.StatusBadGateway }
func (e *ProviderError) StatusCode() int          { return http.StatusBadGateway }
func (e *BusyError) StatusCode() int              { return http.StatusConflict }
func (e *PreconditionError) StatusCode() int      { return http.StatusPreconditionFailed }
