package architecture

import (
	"fmt"
	"strings"

	"github.com/polisai/archextract/pkg/domain"
)

// Validate reports every cycle among services as a validation error whose
// nodes are the member service names in discovery order. CycleFirst stops
// after the first cycle.
func (a *Architecture) Validate(mode domain.CycleMode) []domain.ValidationError {
	var out []domain.ValidationError
	for _, cycle := range a.graph.FindCycles(mode) {
		names := make([]string, 0, len(cycle))
		for _, id := range cycle {
			if n, ok := a.graph.Node(id); ok {
				names = append(names, n.Label)
			}
		}
		out = append(out, domain.ValidationError{
			Kind:    domain.ErrServiceCycle,
			Nodes:   names,
			Message: fmt.Sprintf("cyclic services: %s", strings.Join(names, " -> ")),
		})
	}
	return out
}
