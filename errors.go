package dossier

import "errors"

var (
	// ErrConfigRequired is returned when Open is called without a configuration.
	ErrConfigRequired = errors.New("configuration required")

	// ErrBusy is returned when the query queue is full.
	ErrBusy = errors.New("too many queries in flight")

	// ErrClosed is returned by an engine after Close.
	ErrClosed = errors.New("engine is closed")
)
