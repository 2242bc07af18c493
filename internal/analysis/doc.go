// Package analysis turns the conversations in a date range into the thematic
// and sentiment report served by /api/analysis.
//
// The Analyzer runs in one of two modes. Full mode sends a transcript digest
// to a language model and normalizes its structured answer. Fallback mode
// scores messages against a small sentiment lexicon and counts topic
// keywords. Any failure in full mode (an error, a panic, an unparseable
// answer, or the total timeout) yields a fallback result labelled with the
// reason, so callers always receive a well-typed payload.
//
// Cache memoizes marshalled payloads per (range, agent) for a fixed TTL.
// Concurrent requests for the same key share one computation, and failed
// computations are never stored.
package analysis
