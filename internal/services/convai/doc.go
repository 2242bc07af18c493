// Package convai talks to the conversational-AI provider that owns the call
// records: paginated conversation listings per agent and per-conversation
// detail payloads. Failures are classified with services markers so callers
// can decide which ones to retry.
package convai
