package ruleset

import (
	"sync/atomic"
)

// Holder publishes the current snapshot. Readers never block; a swap is a
// single atomic store.
type Holder struct {
	cur atomic.Pointer[Snapshot]
}

// NewHolder creates a Holder serving s.
func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	h.cur.Store(s)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Snapshot {
	return h.cur.Load()
}

// Swap installs s and returns the snapshot it replaced.
func (h *Holder) Swap(s *Snapshot) *Snapshot {
	return h.cur.Swap(s)
}
