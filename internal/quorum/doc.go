// Package quorum fans an entry out to every replica concurrently and
// aggregates the acknowledgments through a single buffered channel.
// Waiters consume acknowledgments in completion order; whatever a waiter
// does not consume stays in the channel for a later drain.
package quorum
