package model

import "sort"

// Service is a named deployment unit observed in traces.
type Service struct {
	ID       int
	Name     string
	Hosts    []string
	hostSet  map[string]struct{}
	Capacity float64
	// LoadBalancer is never nil.
	LoadBalancer *LoadBalancer
	Tags         map[string]string
	Operations   map[string]*Operation

	ids *IDAllocator
}

func newService(id int, name string, ids *IDAllocator) *Service {
	return &Service{
		ID:           id,
		Name:         name,
		hostSet:      make(map[string]struct{}),
		Capacity:     DefaultCapacity,
		LoadBalancer: NewLoadBalancer(),
		Tags:         make(map[string]string),
		Operations:   make(map[string]*Operation),
		ids:          ids,
	}
}

// AddHost records an instance identifier, preserving first-seen order.
func (s *Service) AddHost(host string) bool {
	if host == "" {
		return false
	}
	if _, ok := s.hostSet[host]; ok {
		return false
	}
	s.hostSet[host] = struct{}{}
	s.Hosts = append(s.Hosts, host)
	return true
}

// HasHost reports whether host was observed for this service.
func (s *Service) HasHost(host string) bool {
	_, ok := s.hostSet[host]
	return ok
}

// EnsureOperation returns the named operation, creating it on first observation.
func (s *Service) EnsureOperation(name string) *Operation {
	if op, ok := s.Operations[name]; ok {
		return op
	}
	op := newOperation(s.ids.Next(KindOperation), name, s.Name)
	s.Operations[name] = op
	return op
}

// RemoveOperation deletes an operation by name.
func (s *Service) RemoveOperation(name string) bool {
	if _, ok := s.Operations[name]; !ok {
		return false
	}
	delete(s.Operations, name)
	return true
}

// OperationNames returns operation names in lexical order.
func (s *Service) OperationNames() []string {
	names := make([]string, 0, len(s.Operations))
	for name := range s.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedOperations returns operations in lexical name order.
func (s *Service) SortedOperations() []*Operation {
	names := s.OperationNames()
	out := make([]*Operation, 0, len(names))
	for _, name := range names {
		out = append(out, s.Operations[name])
	}
	return out
}
