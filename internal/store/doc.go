// Package store is the SQLite persistence layer: the recipient directory,
// the prediction lifecycle state machine and the choice ledger.
//
// The hard invariants live in the schema, not the application:
//   - at most one scheduled and one active prediction (partial unique indexes)
//   - one non-test choice per recipient per calendar month (partial unique
//     index exempting is_test rows)
//
// Every mutation is a single transaction; a write failure leaves the prior
// state unchanged.
package store
