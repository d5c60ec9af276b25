// Package worker serializes all access to one SQLite connection through a
// single dedicated goroutine.
//
// Any number of producers may call Execute concurrently; commands flow
// through a bounded queue and are executed strictly in enqueue order.
// Mutations are fire-and-forget: the producer returns as soon as the
// command is queued, and execution errors are logged, never surfaced.
// Queries block the producer until the worker delivers the rows (or the
// in-band execution error) through a token-correlated one-shot channel.
//
// Commits are batched: the worker commits when it observes the queue empty
// after executing a command, or after a configurable number of commands,
// not after every statement. A crash between commits can lose queued
// mutations; callers needing per-call durability should use the storage
// package instead.
package worker
