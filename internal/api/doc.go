// Package api serves the callscope HTTP API.
//
// # Routes
//
//	POST /api/sync?full_sync=true|false   run one sync, 409 while another runs
//	GET  /api/sync/history?limit=N        recent sync runs, newest first
//	GET  /api/analysis?start_date&end_date[&agent_id]
//	GET  /api/dashboard-stats?timeframe|start_date&end_date[&agent_id]
//	GET  /api/conversations?limit=N[&agent_id]
//	GET  /api/health                      liveness, never authenticated
//
// Errors are JSON objects with "error" and optional "details"; the status
// code comes from services.HTTPStatus. Analysis responses are the cached
// bytes verbatim with an X-Cache header of "hit" or "miss".
//
// When paths.api_token is configured every route except /api/health
// requires "Authorization: Bearer <token>". Every response carries an
// X-Request-ID, taken from the request when present.
//
// DTOs use snake_case JSON tags to match the analysis and dashboard
// documents. Timestamps use RFC3339 with milliseconds.
package api
