package rulebook

import "sync/atomic"

// Holder publishes the active model. Readers always see a complete model;
// a reload swaps the pointer whole.
type Holder struct {
	current atomic.Pointer[Model]
}

// NewHolder returns a Holder serving m.
func NewHolder(m *Model) *Holder {
	h := &Holder{}
	h.current.Store(m)
	return h
}

// Model returns the active model.
func (h *Holder) Model() *Model { return h.current.Load() }

// Swap installs m and returns the previous model.
func (h *Holder) Swap(m *Model) *Model { return h.current.Swap(m) }
