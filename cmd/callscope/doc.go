// Command callscope synchronizes call transcripts from the conversation
// provider into a local SQLite store and reports on them.
//
// Run "callscope config init" to write a sample configuration, then
// "callscope sync" to pull conversations and "callscope serve" to expose the
// HTTP API. The analysis, stats, and conversations commands read the local
// store directly and do not need a running server.
package main
