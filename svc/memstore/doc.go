// Package memstore holds billing state in process memory. It backs tests
// and single-instance development runs with the same conditional-write
// semantics as the MongoDB stores: preconditions are checked and the write
// applied under one lock, and callers only ever see copies.
package memstore
