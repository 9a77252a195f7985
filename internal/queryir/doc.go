// Package queryir describes filters over recorded runs and trace events
// without tying them to a storage backend.
//
// A Select reads one source (runs or trace events) and keeps the rows
// that satisfy its Predicate:
//
//	[--where terms, URL params] → [Query IR] → [SQL backend]
//
// Predicates:
//   - Equals: field = value
//   - OneOf: field IN (values)
//   - Since: time field >= instant
//   - BoundEquals: field = a value supplied at compile time
//   - And: all predicates hold
//
// Values are ir Strings and Ints. None never matches
// anything and is rejected by Validate, as are unknown fields and values
// whose type does not fit the field.
//
// Query and Predicate are sealed interfaces: only types in this package
// implement them, so backends can switch over every node.
//
//	switch q := query.(type) {
//	case Select, *Select:
//	    // the only query form
//	}
//
// User-typed filters arrive as terms such as "status=failed",
// "status=failed,cancelled" or "started_at>=2025-03-01T00:00:00Z"; see
// ParseTerm.
package queryir
