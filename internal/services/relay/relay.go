// Package relay hands annotated frames from a stream pipeline to a display
// consumer through a single overwrite-on-full slot.
package relay

import (
	"sync/atomic"

	"facegate-worker-go/internal/models"
)

type Relay struct {
	slot  atomic.Pointer[models.AnnotatedFrame]
	puts  atomic.Int64
	drops atomic.Int64
}

func New() *Relay {
	return &Relay{}
}

// Put replaces any undrained frame. It never blocks.
func (r *Relay) Put(f *models.AnnotatedFrame) {
	if f == nil {
		return
	}
	r.puts.Add(1)
	if old := r.slot.Swap(f); old != nil {
		r.drops.Add(1)
	}
}

// Poll takes the pending frame, if any, and empties the slot.
func (r *Relay) Poll() (*models.AnnotatedFrame, bool) {
	f := r.slot.Swap(nil)
	return f, f != nil
}

// Drops returns how many frames were overwritten before a consumer saw them
func (r *Relay) Drops() int64 { return r.drops.Load() }

func (r *Relay) Puts() int64 { return r.puts.Load() }
