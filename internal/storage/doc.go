// Package storage provides the replica-local entry store and its in-memory
// implementation. A store only records what its replica applied, in the
// order it applied it, which may differ from the leader's commit order.
package storage
