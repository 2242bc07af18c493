// Package logging assembles structured slog loggers and formatting helpers used
// across callscope.
//
// It owns the configurable console/JSON handlers, fans records out to the
// persistent log file, and exposes context-aware helpers so sync and report
// code automatically tags log lines with sync run IDs, agent filters, and
// correlation IDs. The package also provides a no-op logger for tests and
// wiring code that cannot fail.
package logging
