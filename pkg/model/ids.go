package model

import "sync"

// EntityKind partitions the id space of a model.
type EntityKind int

const (
	KindService EntityKind = iota
	KindOperation
	KindHazard
)

// IDAllocator hands out dense, monotonically increasing ids per entity kind.
// Every model and architecture graph owns one; ids never leak between models.
type IDAllocator struct {
	mu   sync.Mutex
	next map[EntityKind]int
}

// NewIDAllocator returns an allocator whose first id for every kind is 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: make(map[EntityKind]int)}
}

// Next returns the next id for kind.
func (a *IDAllocator) Next(kind EntityKind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next[kind]++
	return a.next[kind]
}
