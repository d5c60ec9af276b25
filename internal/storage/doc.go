// Package storage provides a persistent, dict-like key-value store backed
// by SQLite.
//
// Each Store owns exactly one namespace: a table named tb_<namespace> inside
// a single database file. Values of arbitrary shape are serialized into a
// self-describing JSON wrapper so that a stored null remains distinguishable
// from an absent key.
//
// # Concurrency Model
//
// A Store owns a single exclusive connection. All callers are expected to
// coordinate through the Store's own method calls; the Store is cooperative,
// not isolating - it does not synchronize overlapping method calls issued
// from independent goroutines. Use one Store per goroutine, or guard the
// instance externally. For multi-producer access to one connection, use the
// worker package instead.
//
// # Transactions
//
// Every mutating call wraps itself in BEGIN EXCLUSIVE ... COMMIT and rolls
// back before surfacing an error. Scope suspends the implicit per-call
// commit so that multiple operations compose into one atomic unit.
//
// # Expiry
//
// When opened with a positive Expires, entries whose updated time is older
// than the configured age are purged exactly once, at initialization. There
// is no background sweeper.
package storage
