package stream

import (
	"sync"
)

// Slot holds the most recent frame of one stream. Writers overwrite, readers
// peek; nothing is queued and nobody blocks on anybody but the mutex, which
// only guards a pointer swap.
type Slot struct {
	frame *Frame

	// Set by Put, cleared by Latest.
	fresh bool

	// Frames overwritten before anyone read them.
	drops uint64

	sync.Mutex
}

// Put replaces the slot contents with f. The previous frame, if nobody read it,
// counts as a drop.
func (s *Slot) Put(f *Frame) {
	s.Lock()
	defer s.Unlock()

	if s.fresh {
		s.drops++
	}
	s.frame = f
	s.fresh = true
}

// Latest returns the most recently stored frame, or false if the slot is empty.
// The frame stays in the slot, so repeated calls without an intervening Put
// return the same frame.
func (s *Slot) Latest() (*Frame, bool) {
	s.Lock()
	defer s.Unlock()

	s.fresh = false
	return s.frame, s.frame != nil
}

// Peek is Latest without consuming freshness, for observers other than the
// serving loop.
func (s *Slot) Peek() (*Frame, bool) {
	s.Lock()
	defer s.Unlock()
	return s.frame, s.frame != nil
}

// Fresh reports whether a frame arrived since the last call to Latest.
func (s *Slot) Fresh() bool {
	s.Lock()
	defer s.Unlock()
	return s.fresh
}

// Clear empties the slot.
func (s *Slot) Clear() {
	s.Lock()
	defer s.Unlock()

	s.frame = nil
	s.fresh = false
}

// Drops returns the number of frames overwritten before they were read.
func (s *Slot) Drops() uint64 {
	s.Lock()
	defer s.Unlock()
	return s.drops
}
