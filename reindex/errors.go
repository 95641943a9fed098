package reindex

import "errors"

var (
	// ErrSourceRequired is returned when a source repository is not provided.
	ErrSourceRequired = errors.New("source repository required")

	// ErrTargetRequired is returned when a target repository is not provided.
	ErrTargetRequired = errors.New("target repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrSameRepository is returned when source and target are the same repository.
	ErrSameRepository = errors.New("source and target must be different repositories")

	// ErrTargetNotEmpty is returned when the target repository already holds an index.
	ErrTargetNotEmpty = errors.New("target repository already holds an index")
)
