// Package latest provides the single-slot value cell shared between the
// control loop and its background producers (camera acquisition, remote link
// pump). Writers overwrite, readers never block and always observe either the
// most recent value or "not ready".
package latest

import "sync/atomic"

// Cell holds the most recently stored value of T. The zero Cell is empty and
// ready to use. Store and Load are safe for one producer and one consumer
// running concurrently; there is no queueing and no backpressure.
type Cell[T any] struct {
	p   atomic.Pointer[T]
	seq atomic.Uint64
}

// Store replaces the current value.
func (c *Cell[T]) Store(v T) {
	c.p.Store(&v)
	c.seq.Add(1)
}

// Load returns the current value without consuming it. ok is false if
// nothing has been stored yet (or the value was taken).
func (c *Cell[T]) Load() (v T, ok bool) {
	p := c.p.Load()
	if p == nil {
		return v, false
	}
	return *p, true
}

// Take returns the current value and empties the cell so the same value is
// never observed twice.
func (c *Cell[T]) Take() (v T, ok bool) {
	p := c.p.Swap(nil)
	if p == nil {
		return v, false
	}
	return *p, true
}

// Seq counts Store calls. Comparing two readings tells a consumer whether a
// fresh value arrived in between.
func (c *Cell[T]) Seq() uint64 {
	return c.seq.Load()
}
