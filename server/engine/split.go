package engine

// This file documents the Go-idiomatic replacement for the teacher's
// subsystem-splitting scheme (original_source/server/engine/split.rs):
// a macro-generated family of EnginePart<'a, 'd, ...> phantom-typed
// borrows, used to hand e.g. "world + vision, but not chunks" to a
// helper without the borrow checker treating the whole Engine as
// mutably borrowed.
//
// Go has no borrow checker, so there is nothing to convince: any method
// on *Engine can read and write any combination of its fields directly.
// The property split.rs actually protects — that two subsystems sharing
// the Engine are never mutated from two different goroutines at once —
// is instead an invariant of the event loop's structure (see engine.go's
// Run): handleFrame, handleWake, and handleChunkReady all run on the
// single goroutine that owns the *Engine, never concurrently with each
// other. recursionGuard below is a cheap runtime assertion of that invariant,
// the same role Rust's static borrow check played, just checked at
// runtime instead of compile time.
type recursionGuard struct {
	active bool
}

// enter panics if the engine loop is re-entered while already running a
// step — the single-goroutine invariant every Fragment/Vision/Cache call
// in this package depends on for correctness without locking.
func (g *recursionGuard) enter() func() {
	if g.active {
		panic("engine: re-entered the event loop from within a step; every subsystem here assumes single-threaded access")
	}
	g.active = true
	return func() { g.active = false }
}
