// Package ir defines the runtime value model for Cognos programs.
//
// Every value a program can observe is one of the sealed Value variants:
// String, Int, Float, Bool, None, List, Map, Handle, Module and Future.
// ir imports nothing internal; every other package builds on it.
//
// Key constraints:
//   - Values are immutable. List and Map expose copy-on-write helpers
//     (Append, With, Without) and never hand out their backing storage.
//   - Map preserves insertion order; keys are unique.
//   - Mixed Int/Float arithmetic promotes to Float (see the engine).
//   - Canonical JSON (RFC 8785 key order, NFC strings) is the only
//     serialization used for digests.
package ir
