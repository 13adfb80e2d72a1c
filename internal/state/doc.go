// Package state holds the live mirror of the remote friends list.
//
// # Overview
//
// Store maps a friend ID to the last Friend snapshot observed by a poll.
// It is a pure data holder: the poller writes a batch after diffing it
// against the previous contents, and readers (the session view, the CLI)
// receive sorted copies.
//
// # Update Semantics
//
//	store.Update(friends, now)
//	→ every friend in the batch replaces its previous entry
//	→ friends absent from the batch stay in the store
//	→ LastError cleared, ConsecutiveFailures reset
//
//	store.RecordFailure(err, now)
//	→ friend data untouched
//	→ LastError = err, ConsecutiveFailures++
//
// A transient poll failure never clears data; two consecutive failures
// flip Snapshot.IsOffline so a consumer can show a muted indicator.
//
// # Concurrency Model
//
// Store uses a readers-writer lock. Get, List, Len and Snapshot take the
// read lock and copy; Update, RecordFailure and Reset take the write lock.
// The lock is never held across network I/O.
package state
