package btree

import "golang.org/x/exp/constraints"

// Less is a ready-made comparator for any naturally ordered key type,
// covering the common case where New's explicit less parameter would
// otherwise just be `func(a, b K) bool { return a < b }`. Keys that need
// a composite order — the VMA allocator's (size, ptr) best-fit ordering,
// spec.md §4.6 — supply their own comparator instead.
func Less[K constraints.Ordered](a, b K) bool {
	return a < b
}
