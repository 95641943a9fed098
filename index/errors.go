package index

import "errors"

var (
	// ErrRepositoryRequired is returned when a repository is not provided.
	ErrRepositoryRequired = errors.New("entry repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrNoSeeds is returned when Create is called without seed documents.
	ErrNoSeeds = errors.New("index requires at least one seed document")

	// ErrInvalidK is returned when a search asks for fewer than one result.
	ErrInvalidK = errors.New("k must be positive")

	// ErrClosed is returned when the index has been closed.
	ErrClosed = errors.New("index is closed")
)
