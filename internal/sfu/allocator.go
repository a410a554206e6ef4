// Package sfu assigns advisory SFU node labels to new sessions.
// The label is routing metadata only; the relay does not use it.
package sfu

import "sync/atomic"

// DefaultNode is used when no node pool is configured.
const DefaultNode = "sfu-1"

// Allocator hands out node labels in cyclic order. It owns its
// counter, so allocation order is deterministic per instance.
type Allocator struct {
	nodes []string
	next  atomic.Uint64
}

// New creates an allocator over the configured node pool. An empty
// pool falls back to a single default node.
func New(nodes []string) *Allocator {
	pool := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if n != "" {
			pool = append(pool, n)
		}
	}
	if len(pool) == 0 {
		pool = []string{DefaultNode}
	}
	return &Allocator{nodes: pool}
}

// Pick returns the next node label in round-robin order.
func (a *Allocator) Pick() string {
	i := a.next.Add(1) - 1
	return a.nodes[i%uint64(len(a.nodes))]
}

// Nodes returns a copy of the configured pool.
func (a *Allocator) Nodes() []string {
	out := make([]string, len(a.nodes))
	copy(out, a.nodes)
	return out
}
