// Package replica implements the follower side of replication: a replica
// applies one entry to its local store and acknowledges after a delay chosen
// by an injected Latency provider. Replicas never fail and never reference
// the coordinator that drives them.
package replica
