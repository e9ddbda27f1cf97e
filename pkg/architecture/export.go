package architecture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/polisai/archextract/pkg/hazard"
	"github.com/polisai/archextract/pkg/model"
)

// ExportType selects the export wrapper.
type ExportType string

const (
	ExportJSON ExportType = "json"
	// ExportJS wraps the payload as a script assignment to graph.
	ExportJS ExportType = "js"
)

// ParseExportType accepts json (the default) and js.
func ParseExportType(raw string) (ExportType, error) {
	switch ExportType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportJSON:
		return ExportJSON, nil
	case ExportJS, "javascript":
		return ExportJS, nil
	default:
		return "", fmt.Errorf("unknown export type %q", raw)
	}
}

// ExportOptions controls the payload layout.
type ExportOptions struct {
	// Lightweight omits the per-call data blocks.
	Lightweight bool
	Pretty      bool
	Type        ExportType
}

type exportNode struct {
	ID       int       `json:"id"`
	Label    string    `json:"label"`
	Priority int       `json:"priority"`
	Data     *nodeData `json:"data,omitempty"`
}

type nodeData struct {
	Tags map[string]string `json:"tags"`
}

type exportEdge struct {
	ID       int       `json:"id"`
	Label    string    `json:"label"`
	Source   int       `json:"source"`
	Target   int       `json:"target"`
	Priority int       `json:"priority"`
	Data     *edgeData `json:"data,omitempty"`
}

type edgeData struct {
	Duration map[string]float64          `json:"duration"`
	Logs     map[string][]model.LogEntry `json:"logs"`
	Tags     map[string]map[string]any   `json:"tags"`
}

type analysisEntry struct {
	PropertyType hazard.PropertyType `json:"property_type"`
	PropertyName string              `json:"property_name"`
	Metric       hazard.Metric       `json:"metric"`
	Keyword      hazard.Keyword      `json:"keyword"`
	Value        float64             `json:"value"`
	Severity     int                 `json:"severity"`
}

type payload struct {
	Nodes    object[exportNode]    `json:"nodes"`
	Edges    object[exportEdge]    `json:"edges"`
	Analysis object[analysisEntry] `json:"analysis"`
}

// object is a JSON object that keeps insertion order.
type object[T any] struct {
	keys   []string
	values []T
}

func (o *object[T]) set(key string, v T) {
	o.keys = append(o.keys, key)
	o.values = append(o.values, v)
}

func (o object[T]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Export renders the graph, per-call diagnostics and the first hazard of each
// type. The output depends only on the model and report, so repeated exports
// are byte-identical.
func (a *Architecture) Export(report hazard.Report, opts ExportOptions) ([]byte, error) {
	var p payload
	priorities := make(map[string]int)

	for _, n := range a.graph.Nodes() {
		id, err := strconv.Atoi(n.ID)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", n.ID, err)
		}
		prio := a.graph.NodePriority(n.ID)
		priorities[n.ID] = prio
		node := exportNode{ID: id, Label: n.Label, Priority: prio}
		if !opts.Lightweight {
			tags := map[string]string{}
			if svc, ok := n.Data.(*model.Service); ok && svc.Tags != nil {
				tags = svc.Tags
			}
			node.Data = &nodeData{Tags: tags}
		}
		p.Nodes.set(n.ID, node)
	}

	for _, e := range a.graph.Edges() {
		source, _ := strconv.Atoi(e.Source)
		target, _ := strconv.Atoi(e.Target)
		edge := exportEdge{
			ID:       e.ID,
			Label:    e.Label,
			Source:   source,
			Target:   target,
			Priority: priorities[e.Source] + priorities[e.Target],
		}
		if op, ok := e.Data.(*model.Operation); ok && !opts.Lightweight {
			edge.Data = &edgeData{Duration: op.Durations, Logs: op.Logs, Tags: op.Tags}
		}
		p.Edges.set(strconv.Itoa(e.ID), edge)
	}

	for _, t := range hazard.Types() {
		h, ok := report.First(t)
		if !ok {
			continue
		}
		p.Analysis.set(string(t), analysisEntry{
			PropertyType: h.PropertyType,
			PropertyName: h.PropertyName,
			Metric:       h.Metric,
			Keyword:      h.Keyword,
			Value:        h.Value,
			Severity:     h.Severity,
		})
	}

	var (
		out []byte
		err error
	)
	if opts.Pretty {
		out, err = json.MarshalIndent(p, "", "  ")
	} else {
		out, err = json.Marshal(p)
	}
	if err != nil {
		return nil, fmt.Errorf("encode architecture: %w", err)
	}
	if opts.Type == ExportJS {
		out = append(append([]byte("const graph="), out...), ';')
	}
	return out, nil
}
