// Package policy maps replication mode names to consistency policies and
// tracks a single submission through Dispatched, Waiting and Settled.
//
// Three policies exist: Async (fire-and-forget), Sync (full quorum, every
// replica must acknowledge) and SemiSync (first acknowledgment wins while
// the remaining calls keep running).
package policy
