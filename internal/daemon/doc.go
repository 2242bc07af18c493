// Package daemon coordinates the long-running callscope server process.
//
// It wires configuration, the HTTP API, scheduled synchronization, and
// analysis cache maintenance into a single lifecycle with flock-based
// locking to prevent multiple instances against one data directory.
//
// Keep orchestration logic here: sync and report behavior live in their
// respective packages while the daemon focuses on startup, shutdown, and
// the background loops.
package daemon
