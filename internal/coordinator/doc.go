// Package coordinator implements the replication leader. It owns the write
// log and the replica registry; each submission is appended to the log,
// dispatched to every replica at once and then waited on according to the
// requested consistency policy.
//
// Limitations:
// - No retries: a replica that never acknowledges blocks a sync submission
//   until the caller's context ends.
// - No timeouts of its own; bound waits with the context passed to Submit.
// - Async submissions never observe their acknowledgments.
package coordinator
