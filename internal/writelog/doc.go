// Package writelog holds the leader's append-only write log. Every accepted
// submission becomes exactly one Entry, and sequence numbers are assigned
// under the log's lock so they stay strictly increasing and gap-free.
package writelog
