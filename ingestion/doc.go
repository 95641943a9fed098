// Package ingestion provides the gate through which new documents enter an index.
//
// The Gate normalizes caller payloads into documents:
//   - Non-text content and metadata values are stringified
//   - A provenance tag is attached when the payload carries none
//   - Long contents are optionally split into overlapping chunks
//
// Invalid payloads are rejected individually and reported; the remaining
// documents are appended to the index in one batch and the index is saved.
package ingestion
