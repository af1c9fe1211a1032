// Reusable slice pools for hot paths
//
// A Slices pool hands out zero-length slices and takes them back once the
// caller is done with the contents. Oversized slices are dropped on Put so
// one large batch does not pin memory.
//
// Usage:
//
//	batch := segmentPool.Get()
//	batch = append(batch, segs...)
//	defer segmentPool.Put(batch)
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
	"sync/atomic"
)

// Slices pools slices of T with a starting capacity.
type Slices[T any] struct {
	pool   sync.Pool
	maxCap int

	gets     atomic.Uint64
	allocs   atomic.Uint64
	discards atomic.Uint64
}

// NewSlices creates a pool whose fresh slices have capacity initialCap.
// Slices that grew beyond maxCap are not returned to the pool.
func NewSlices[T any](initialCap, maxCap int) *Slices[T] {
	p := &Slices[T]{maxCap: maxCap}
	p.pool.New = func() any {
		p.allocs.Add(1)
		s := make([]T, 0, initialCap)
		return &s
	}
	return p
}

// Get returns an empty slice.
func (p *Slices[T]) Get() []T {
	p.gets.Add(1)
	return (*p.pool.Get().(*[]T))[:0]
}

// Put returns s to the pool. The caller must not use s afterwards.
func (p *Slices[T]) Put(s []T) {
	if s == nil {
		return
	}
	if cap(s) > p.maxCap {
		p.discards.Add(1)
		return
	}
	clear(s[:cap(s)])
	s = s[:0]
	p.pool.Put(&s)
}

// Stats holds statistics about pool usage
type Stats struct {
	Gets     uint64
	Allocs   uint64
	Discards uint64
}

// Stats returns the usage counters.
func (p *Slices[T]) Stats() Stats {
	return Stats{
		Gets:     p.gets.Load(),
		Allocs:   p.allocs.Load(),
		Discards: p.discards.Load(),
	}
}
