// Package store persists warren's shared JSON documents and wraps
// read-modify-write cycles in sidecar lock scopes.
//
// # Error contract
//
// Reads never fail on missing or malformed input: a document that does
// not exist, cannot be read, or does not parse is treated as "no prior
// state" and yields the caller's default value. [Load] surfaces the
// underlying condition ([ErrNotFound], [ErrCorrupt]) for callers that
// want to distinguish; [LoadOrDefault] and transaction reads absorb it.
//
// Writes are atomic: the document is serialized to a sibling ".tmp"
// staging file and renamed over the target, so readers only ever
// observe fully-committed snapshots. Write failures surface as
// [ErrWriteFailed] and leave the previously committed document intact.
//
// # Transactions
//
// [Update] runs a function on one document inside its lock scope and
// commits a replacement only if the function asks for it. [UpdateMulti]
// does the same for several documents at once, acquiring their locks in
// ascending lexicographic path order regardless of the order requested.
// Two transactions over the same documents therefore always lock them
// in the same underlying order and can never form a circular wait.
package store
