// Package testutil contains fluent builders used across tests to construct
// session logs and transcript records. Not intended for production usage.
package testutil
