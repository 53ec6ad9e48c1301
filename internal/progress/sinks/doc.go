// Package sinks implements progress consumers: structured logging, Prometheus
// counters, note-event publishing, and an in-memory status snapshot served by
// the status API.
package sinks
