// Package ingest synchronizes the local conversation store with the external
// provider.
//
// A run lists conversation identifiers across every configured endpoint and
// agent, classifies each against the local summary index, then fetches,
// adapts, and persists the records that are new or still missing a summary.
// Listing and detail calls run under the bounded retry policy; a failure on
// one page or one record is counted and logged without aborting the batch.
//
// Syncer serializes runs with an in-process guard and a lock file so the API
// server and the CLI never reconcile concurrently.
package ingest
