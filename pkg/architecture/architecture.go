package architecture

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/polisai/archextract/pkg/graph"
	"github.com/polisai/archextract/pkg/model"
)

// Architecture is the service graph of one model. Nodes are services, edges
// are operations: one edge per operation and distinct callee service, or a
// self edge when the operation calls nothing.
type Architecture struct {
	model *model.Model
	graph *graph.Graph
}

// Build projects m. Dependencies on services missing from m produce no edge;
// the model validator reports them.
func Build(m *model.Model) (*Architecture, error) {
	a := &Architecture{model: m, graph: graph.New()}

	services := servicesByID(m)
	for _, svc := range services {
		if _, err := a.graph.AddNode(graph.Node{ID: nodeID(svc), Label: svc.Name, Data: svc}); err != nil {
			return nil, fmt.Errorf("add service %s: %w", svc.Name, err)
		}
	}

	for _, svc := range services {
		source := nodeID(svc)
		for _, op := range operationsByID(svc) {
			if len(op.Dependencies) == 0 {
				if _, err := a.graph.AddEdge(source, source, op.Name, op); err != nil {
					return nil, fmt.Errorf("add leaf %s: %w", op.Key(), err)
				}
				continue
			}
			seen := make(map[string]bool, len(op.Dependencies))
			for _, dep := range op.Dependencies {
				callee := m.Service(dep.Service)
				if callee == nil || seen[callee.Name] {
					continue
				}
				seen[callee.Name] = true
				if _, err := a.graph.AddEdge(source, nodeID(callee), op.Name, op); err != nil {
					return nil, fmt.Errorf("add call %s -> %s: %w", op.Key(), callee.Name, err)
				}
			}
		}
	}
	return a, nil
}

// Model returns the projected model.
func (a *Architecture) Model() *model.Model { return a.model }

// Graph returns the service graph.
func (a *Architecture) Graph() *graph.Graph { return a.graph }

func nodeID(svc *model.Service) string {
	return strconv.Itoa(svc.ID)
}

func servicesByID(m *model.Model) []*model.Service {
	out := make([]*model.Service, 0, len(m.Services))
	for _, svc := range m.Services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func operationsByID(svc *model.Service) []*model.Operation {
	out := make([]*model.Operation, 0, len(svc.Operations))
	for _, op := range svc.Operations {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}
