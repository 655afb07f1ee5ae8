// Package state holds the per-run address bookkeeping of the orchestrator and
// an optional append-only journal of outcomes.
package state

import (
	"strings"
	"sync"
)

// AddressSet is a case-insensitive set of email addresses.
type AddressSet struct {
	mu   sync.RWMutex
	rows map[string]int
}

func NewAddressSet() *AddressSet {
	return &AddressSet{rows: make(map[string]int)}
}

func key(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Contains reports whether addr was added before.
func (s *AddressSet) Contains(addr string) bool {
	k := key(addr)
	if k == "" {
		return false
	}

	s.mu.RLock()
	_, ok := s.rows[k]
	s.mu.RUnlock()
	return ok
}

// Add records addr together with the row it came from. The first row wins.
func (s *AddressSet) Add(addr string, row int) {
	k := key(addr)
	if k == "" {
		return
	}

	s.mu.Lock()
	if _, exists := s.rows[k]; !exists {
		s.rows[k] = row
	}
	s.mu.Unlock()
}

// Row returns the row that first added addr.
func (s *AddressSet) Row(addr string) (int, bool) {
	s.mu.RLock()
	row, ok := s.rows[key(addr)]
	s.mu.RUnlock()
	return row, ok
}

func (s *AddressSet) Len() int {
	s.mu.RLock()
	n := len(s.rows)
	s.mu.RUnlock()
	return n
}
