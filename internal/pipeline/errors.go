// Package pipeline holds the error taxonomy shared by the ingestion and
// generation paths. Component errors propagate unchanged up to the
// orchestrator, which is the single place that turns them into a persisted
// failed status.
package pipeline

import (
	"errors"
	"fmt"
)

// FetchError is a non-2xx response while resolving a URL source.
type FetchError struct {
	StatusCode int
	URL        string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed with status %d for %s", e.StatusCode, e.URL)
}

// UnsupportedContentError is a content type the fetcher cannot turn into
// text (binary formats must arrive as pre-extracted file content).
type UnsupportedContentError struct {
	ContentType string
	URL         string
}

func (e *UnsupportedContentError) Error() string {
	return fmt.Sprintf("unsupported content type %q at %s", e.ContentType, e.URL)
}

// UnsupportedProviderError is a provider name outside the closed set of
// supported variants.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q", e.Provider)
}

// EmbeddingProviderError is a non-2xx response (or timeout) from the
// embedding API. The whole embed operation fails; no partial-batch retry.
type EmbeddingProviderError struct {
	StatusCode int
	Body       string
}

func (e *EmbeddingProviderError) Error() string {
	return fmt.Sprintf("embedding provider returned status %d: %s", e.StatusCode, e.Body)
}

// GenerationErrorKind classifies generation failures so the chat caller can
// react (re-authenticate vs. back off).
type GenerationErrorKind string

const (
	GenerationErrAuth       GenerationErrorKind = "authentication"
	GenerationErrPermission GenerationErrorKind = "permission"
	GenerationErrNotFound   GenerationErrorKind = "not_found"
	GenerationErrRateLimit  GenerationErrorKind = "rate_limit"
	GenerationErrStream     GenerationErrorKind = "stream"
	GenerationErrOther      GenerationErrorKind = "other"
)

// GenerationProviderError is a failure from the generation API or a corrupt
// stream.
type GenerationProviderError struct {
	StatusCode int
	Kind       GenerationErrorKind
	Body       string
}

func (e *GenerationProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation provider returned status %d (%s): %s", e.StatusCode, e.Kind, e.Body)
	}
	return fmt.Sprintf("generation stream failed (%s): %s", e.Kind, e.Body)
}

// ConfigMismatchError is an embedding dimension disagreement between the
// configured model and the vectors already persisted. Never silently
// produces wrong-similarity results.
type ConfigMismatchError struct {
	QueryDims int
	StoreDims int
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: query has %d dims, store has %d", e.QueryDims, e.StoreDims)
}

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status to a generation error kind.
func ClassifyStatus(status int) GenerationErrorKind {
	switch status {
	case 401:
		return GenerationErrAuth
	case 403:
		return GenerationErrPermission
	case 404:
		return GenerationErrNotFound
	case 429:
		return GenerationErrRateLimit
	default:
		return GenerationErrOther
	}
}

// IsRetryable reports whether a streaming failure may be retried by
// re-issuing the request. Application-level (4xx) errors never are.
func IsRetryable(err error) bool {
	var genErr *GenerationProviderError
	if errors.As(err, &genErr) {
		return genErr.StatusCode >= 500
	}
	// Network-class errors (no HTTP status attached).
	var fetchErr *FetchError
	var embedErr *EmbeddingProviderError
	if errors.As(err, &fetchErr) || errors.As(err, &embedErr) {
		return false
	}
	return true
}
