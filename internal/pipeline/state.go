// Package pipeline wires the DB producer loop, worker pool, and DB consumer
// loop together around the in-memory queues.
package pipeline

import "sync/atomic"

// OutageFlag is the shared, process-wide signal that the upstream gateway is
// fully down. It is written only by the consumer loop (on a 504-class
// decode) and read only by the worker pool; atomic load/store is sufficient
// since it is a hint that bounds backoff, not a correctness lock.
type OutageFlag struct {
	down atomic.Bool
}

func (f *OutageFlag) Set()      { f.down.Store(true) }
func (f *OutageFlag) Clear()    { f.down.Store(false) }
func (f *OutageFlag) IsDown() bool { return f.down.Load() }
