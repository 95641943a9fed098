// Package reindex rebuilds a persisted index under a different embedding
// provider.
//
// Entries are streamed from a source repository in batches, re-embedded with
// retry and exponential backoff, and appended in their original order to an
// empty target repository under a new manifest. Progress is reported as the
// run advances.
package reindex
