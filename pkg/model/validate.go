package model

import "github.com/polisai/archextract/pkg/domain"

// Validate checks referential integrity and structural invariants: no
// operation depends on itself, no two operations depend on each other, and
// every dependency target exists. In fail-fast mode it returns after the
// first finding. Valid is updated either way.
func (m *Model) Validate(mode domain.ValidationMode) []domain.ValidationError {
	var findings []domain.ValidationError
	failFast := mode == domain.ValidationFailFast

	report := func(v domain.ValidationError) bool {
		findings = append(findings, v)
		return failFast
	}

	for _, svc := range m.SortedServices() {
		for _, op := range svc.SortedOperations() {
			for _, dep := range op.Dependencies {
				base := domain.ValidationError{
					Service:         svc.Name,
					Operation:       op.Name,
					TargetService:   dep.Service,
					TargetOperation: dep.Operation,
				}

				if dep.Service == svc.Name && dep.Operation == op.Name {
					base.Kind = domain.ErrSelfDependency
					base.TargetService, base.TargetOperation = "", ""
					if report(base) {
						m.Valid = false
						return findings
					}
					continue
				}

				target := m.Operation(dep.Service, dep.Operation)
				if target == nil {
					base.Kind = domain.ErrDanglingDependency
					if report(base) {
						m.Valid = false
						return findings
					}
					continue
				}

				// Report each mutual pair once, from the lexically smaller side.
				if target.Dependency(svc.Name, op.Name) != nil && op.Key() < target.Key() {
					base.Kind = domain.ErrCircularDependency
					if report(base) {
						m.Valid = false
						return findings
					}
				}
			}
		}
	}

	m.Valid = len(findings) == 0
	return findings
}
