// Package report answers read-side questions about synchronized
// conversations: thematic analysis through the analysis cache, dashboard
// rollups, sync history, and conversation listings.
//
// The HTTP API and the CLI both go through Service so that query validation
// and caching behave the same regardless of the caller.
package report
