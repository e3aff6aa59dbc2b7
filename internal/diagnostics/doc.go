// Package diagnostics checks host resources before the completion tool is
// spawned and builds the system report printed by `flowrefine doctor`.
//
// Both are best effort: a probe that fails on the current platform leaves
// its fields zeroed rather than failing the caller.
package diagnostics
