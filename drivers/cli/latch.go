package cli

import (
	"sync/atomic"

	"github.com/nanoncore/nano-optics/types"
)

// outcome is the single terminal event of a session run
type outcome struct {
	result *types.ExecResult
	err    error
}

// latch lets exactly one terminal event resolve a run.
// Whoever wins settle owns delivery; later callers are discarded.
type latch struct {
	resolved atomic.Bool
	ch       chan outcome
}

func newLatch() *latch {
	return &latch{ch: make(chan outcome, 1)}
}

// settle delivers o if no other event got there first
func (l *latch) settle(o outcome) bool {
	if !l.resolved.CompareAndSwap(false, true) {
		return false
	}
	l.ch <- o
	return true
}

// done returns the channel carrying the winning outcome
func (l *latch) done() <-chan outcome {
	return l.ch
}

func (l *latch) isResolved() bool {
	return l.resolved.Load()
}
