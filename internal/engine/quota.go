package engine

// DefaultLoopLimit bounds `loop:` statements without an explicit max.
const DefaultLoopLimit = 1000

// DefaultMaxDepth bounds nested flow calls.
const DefaultMaxDepth = 256

// DefaultMaxTurns bounds the generations of one tool-enabled think call.
const DefaultMaxTurns = 10

// MaxSequenceLen bounds strings built by repetition and lists built by
// range(), in bytes and elements respectively.
const MaxSequenceLen = 1 << 26

// quota counts iterations of one loop and enforces its limit.
//
// A fresh quota is created each time a loop statement starts, so nested
// loops and re-entered loops each get the full budget.
type quota struct {
	what    string
	limit   int
	current int
}

func newQuota(what string, limit int) *quota {
	return &quota{what: what, limit: limit}
}

// Check increments the counter and fails once the limit is exceeded.
func (q *quota) Check() error {
	q.current++
	if q.current > q.limit {
		return Errorf("%s exceeded max iterations (%d)", q.what, q.limit)
	}
	return nil
}
