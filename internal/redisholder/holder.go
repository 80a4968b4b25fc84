package redisholder

import (
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// box lets cluster and single-node clients share one atomic slot.
type box struct {
	c redis.UniversalClient
}

// Holder hands out the current client. Consumers must call Get per
// operation; the health loop replaces and closes stale clients.
type Holder struct {
	p atomic.Pointer[box]
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	h.p.Store(&box{c: initial})
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	if b := h.p.Load(); b != nil {
		return b.c
	}
	return nil
}

func (h *Holder) swap(newc redis.UniversalClient) (old redis.UniversalClient) {
	if b := h.p.Swap(&box{c: newc}); b != nil {
		return b.c
	}
	return nil
}

func (h *Holder) Close() error {
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}
