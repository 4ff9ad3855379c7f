//go:build debug
// +build debug

package tag

// Debug is true in builds with "debug" tag. Debug builds check cache invariants after every operation.
const Debug = true
