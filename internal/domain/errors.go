package domain

import "errors"

// Sentinel errors shared by the pipeline, the services and the HTTP layer.
var (
	// ErrUnsupportedFormat indicates a file extension no loader handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmbeddingUnavailable indicates the embedding model could not be reached or failed.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationFailed indicates the language model call failed or timed out.
	ErrGenerationFailed = errors.New("answer generation failed")

	// ErrIndexIO indicates the vector index could not read or persist its state.
	ErrIndexIO = errors.New("vector index i/o error")

	// ErrNotFound indicates a requested document does not exist.
	ErrNotFound = errors.New("not found")

	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyDocument = errors.New("document contains no extractable text")
)
