package testutil

import (
	"fmt"
	"sync"
)

// UUIDSequence hands out deterministic version 4 UUIDs for fixtures.
//
// The same fixture built from a fresh sequence always gets the same keys,
// so golden output stays byte-identical across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type UUIDSequence struct {
	mu  sync.Mutex
	seq int64
}

// NewUUIDSequence creates a sequence starting at 0.
//
// The first call to Next() returns 00000000-0000-4000-8000-000000000001.
func NewUUIDSequence() *UUIDSequence {
	return &UUIDSequence{}
}

// Next increments the sequence and returns its UUID.
func (s *UUIDSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return format(s.seq)
}

// Current returns the number of UUIDs handed out.
func (s *UUIDSequence) Current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Reset restarts the sequence. After Reset(), Next() returns the first UUID
// again.
func (s *UUIDSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = 0
}

func format(n int64) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012x", n)
}
