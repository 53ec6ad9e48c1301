// Package progress carries crawl milestones from the crawl driver to
// observers. The driver emits Events without blocking; a Hub batches them on
// a background goroutine and hands each batch to pluggable sinks that log,
// count, publish, or snapshot the run.
package progress
