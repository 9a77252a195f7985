// Package engine executes Cognos programs.
//
// The Interpreter walks parsed flow bodies statement by statement against a
// Scope. Effectful builtins (print, read, run, think, http) go through an
// effect.Boundary, so the same program runs against real resources or a
// replay script without changes.
//
// CONCURRENCY:
//
// parallel, select and async spawn real goroutines. Each branch or task
// gets a Fork of the enclosing Scope and shares the Boundary, the Tracer and
// the Registry. Nothing else is shared. Joins merge forked bindings back in
// the order they observed completion.
//
// Cancellation is cooperative. Every branch and task runs under its own
// context derived from the enclosing one; cancelling a context cancels all
// work started beneath it. The flag is checked before each statement and
// before each effect, and blocking builtins (await, sleep) wake on it. A
// single effect already in flight is not interrupted by the Scripted
// boundary; the Live boundary passes the context to the shell and HTTP
// calls.
//
// ERRORS:
//
// Runtime failures are *RuntimeError values with a Code (RUNTIME,
// NOT_FOUND, CONCURRENCY). Validation and effect errors keep their own
// types; Classify maps any of them to an ErrorKind. Cancellation unwinds as
// an internal error that try/catch never intercepts.
package engine
