// Package services defines shared utilities consumed by the sync pipeline,
// report handlers, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp sync run IDs, agent filters, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     retryable or terminal and map them onto HTTP statuses.
//
// Provider clients live in subpackages (convai for the conversation source,
// llm for model backends) so they can be faked independently in tests.
package services
