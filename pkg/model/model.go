package model

import "sort"

const (
	// DefaultCapacity is the abstract throughput a service is assumed to offer.
	DefaultCapacity = 1000.0
	// DefaultDemand is the abstract per-call resource cost of an operation.
	DefaultDemand = 100.0
)

// Model maps service names to services.
type Model struct {
	ids      *IDAllocator
	Services map[string]*Service
	// Valid is set by Validate.
	Valid bool
}

// New returns an empty model with its own id allocator.
func New() *Model {
	return &Model{
		ids:      NewIDAllocator(),
		Services: make(map[string]*Service),
	}
}

// Service returns the named service or nil.
func (m *Model) Service(name string) *Service {
	return m.Services[name]
}

// EnsureService returns the named service, creating it on first observation.
func (m *Model) EnsureService(name string) *Service {
	if svc, ok := m.Services[name]; ok {
		return svc
	}
	svc := newService(m.ids.Next(KindService), name, m.ids)
	m.Services[name] = svc
	return svc
}

// ServiceNames returns service names in lexical order.
func (m *Model) ServiceNames() []string {
	names := make([]string, 0, len(m.Services))
	for name := range m.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortedServices returns services in lexical name order.
func (m *Model) SortedServices() []*Service {
	names := m.ServiceNames()
	out := make([]*Service, 0, len(names))
	for _, name := range names {
		out = append(out, m.Services[name])
	}
	return out
}

// Operation resolves a service/operation pair, or nil.
func (m *Model) Operation(service, operation string) *Operation {
	svc := m.Services[service]
	if svc == nil {
		return nil
	}
	return svc.Operations[operation]
}

// EachOperation visits every operation in deterministic order.
func (m *Model) EachOperation(fn func(*Service, *Operation)) {
	for _, svc := range m.SortedServices() {
		for _, op := range svc.SortedOperations() {
			fn(svc, op)
		}
	}
}

// Stats summarises the size of a model.
type Stats struct {
	Services     int
	Hosts        int
	Operations   int
	Dependencies int
	Spans        int
}

// Stats counts the entities in the model.
func (m *Model) Stats() Stats {
	var st Stats
	st.Services = len(m.Services)
	for _, svc := range m.Services {
		st.Hosts += len(svc.Hosts)
		st.Operations += len(svc.Operations)
		for _, op := range svc.Operations {
			st.Dependencies += len(op.Dependencies)
			st.Spans += len(op.Spans)
		}
	}
	return st
}

// OperationKey renders the canonical "service/operation" identifier.
func OperationKey(service, operation string) string {
	return service + "/" + operation
}
