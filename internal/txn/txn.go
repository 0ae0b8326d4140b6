// Package txn provides the per-call transaction used by the settlement
// components. Components mutate their state directly and register an undo for
// every mutation; a failed call rolls the undos back in reverse order and
// discards any buffered events.
package txn

import (
	"time"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// Tx is the unit of atomicity for a single call. It is not safe for
// concurrent use; the engine serializes calls.
type Tx struct {
	at     time.Time
	undo   []func()
	events []domain.Event
	done   bool
}

// New starts a transaction whose clock reads at.
func New(at time.Time) *Tx {
	return &Tx{at: at}
}

// Now is the call time. Deadlines are compared against it.
func (tx *Tx) Now() time.Time {
	return tx.at
}

// OnRollback registers fn to run if the transaction is rolled back.
func (tx *Tx) OnRollback(fn func()) {
	tx.undo = append(tx.undo, fn)
}

// Emit buffers an event. Events become visible only after commit.
func (tx *Tx) Emit(e domain.Event) {
	tx.events = append(tx.events, e)
}

// Events returns the buffered events in emission order.
func (tx *Tx) Events() []domain.Event {
	return tx.events
}

// Rollback undoes every registered mutation, newest first. Calling it after
// Commit or a previous Rollback is a no-op.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.events = nil
}

// Commit drops the undo log.
func (tx *Tx) Commit() {
	tx.done = true
	tx.undo = nil
}
