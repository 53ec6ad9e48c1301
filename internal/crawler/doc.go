// Package crawler walks the cross-reference graph of laws breadth first.
// The Driver owns the queue, the visited set and the in-memory registry for
// one run; it scrapes through a backoff executor, renders through the
// render package, and persists notes, the registry and the unresolved log.
package crawler
