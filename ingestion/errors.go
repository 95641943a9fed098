package ingestion

import "errors"

var (
	// ErrIndexRequired is returned when an index is not provided.
	ErrIndexRequired = errors.New("index required")

	// ErrUnsupportedContent is returned when a payload's content cannot be turned into text.
	ErrUnsupportedContent = errors.New("unsupported content type")
)
