// Package llm provides the model backends used for full conversation analysis.
//
// Completer is the only surface the analyzer depends on: send a system and a
// user prompt, receive a JSON document. Two implementations exist:
//
//   - Client talks to OpenRouter (or any OpenAI-compatible chat completions
//     URL) directly over HTTP, tolerating the response shape quirks of
//     routed providers.
//   - LangChain wraps langchaingo models for the openai, ollama, and
//     anthropic providers.
//
// New selects a backend from configuration and returns ErrNotConfigured when
// analysis should run in fallback mode instead.
//
// Transient failures (HTTP 408/429/5xx, network timeouts, empty completions)
// are retried under a bounded exponential policy; context cancellation aborts
// immediately. DecodeJSON tolerates code fences and surrounding prose.
package llm
