// Package store persists synchronized conversations, their messages, and the
// history of sync runs in SQLite.
//
// The Store manages the database connection, schema initialization, busy
// retries, and the queries the sync pipeline and report handlers need:
// summary-presence lookups for reconciliation, transactional insert/update of
// a conversation with its messages, and date-range reads for analysis and
// dashboard rollups.
//
// Conversations are keyed by the provider's external identifier and are never
// deleted by sync. Schema changes bump schemaVersion in schema.go; operators
// re-sync into a fresh database to adopt a new schema.
package store
