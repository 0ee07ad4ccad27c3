// Package projection defines the deterministic left-fold that turns an
// event log into an application model, and ships one concrete projection
// used by the demo binaries and tests.
package projection

import "github.com/kevinxiao27/echo/id"

// OneWay is a pure function from (model, event) to the next model. A site
// applies it via eventlog.Foldl(log, initial, projection) to compute its
// current model on demand. Implementations must be deterministic and free
// of side effects: independent sites folding the same log contents must
// reach the same model.
type OneWay[M any, T any] func(model M, ev id.Value[T]) M

// Append folds event bodies into a slice in causal order, the simplest
// possible projection and the one every end-to-end test in this repository
// checks sites against after a sync. It mirrors the teacher's Checkout,
// which materializes an op-log into a document by folding operations in
// causal order; here the fold is the identity append rather than a CRDT
// interleave, since the replication core itself does not resolve conflicts
// (SPEC_FULL.md §1 Non-goals).
func Append[T any](model []T, ev id.Value[T]) []T {
	return append(model, ev.Body)
}
