// Package queue persists the event, deferred, rejected, and upload queues
// as line-oriented JSON files under the queue directory.
//
// The active event queue is the single source of truth for pipeline state:
// every transition rewrites it atomically, so a crash at any point leaves
// each item in exactly one well-defined state. Parked queues (deferred,
// rejected) and the upload handoff are append-only.
package queue
