package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/polisai/archextract/pkg/domain"
)

func flattenOpenXTrace(b OpenXTraceBatch, opts compiled) (*flatBatch, error) {
	fb := &flatBatch{format: domain.FormatOpenXTrace}
	for i, trace := range b.Traces {
		root := trace.RootOfTrace
		if root == nil {
			return nil, &domain.StructuralError{
				Format: domain.FormatOpenXTrace,
				Ref:    fmt.Sprintf("traces[%d].rootOfTrace", i),
				Err:    domain.ErrMissingField,
			}
		}
		traceID := root.Identifier
		if traceID == "" {
			traceID = fmt.Sprintf("%s/%s@%d", root.Application, root.BusinessTransaction, root.RootOfSubTrace.Timestamp)
		}
		w := &xtraceWalker{fb: fb, opts: opts, traceID: traceID, path: make(map[*XSubTrace]bool)}
		if err := w.walk(root, "0", ""); err != nil {
			return nil, err
		}
	}
	return fb, nil
}

type xtraceWalker struct {
	fb      *flatBatch
	opts    compiled
	traceID string
	// path holds the sub traces on the current root-to-node path.
	path map[*XSubTrace]bool
}

func (w *xtraceWalker) walk(st *XSubTrace, id, parentID string) error {
	if w.path[st] {
		return &domain.StructuralError{
			Format:    domain.FormatOpenXTrace,
			TraceID:   w.traceID,
			SpanID:    id,
			Service:   st.Application,
			Operation: st.BusinessTransaction,
			Err:       domain.ErrCyclicCallTree,
		}
	}
	if st.Application == "" || st.BusinessTransaction == "" {
		return &domain.StructuralError{
			Format:    domain.FormatOpenXTrace,
			TraceID:   w.traceID,
			SpanID:    id,
			Service:   st.Application,
			Operation: st.BusinessTransaction,
			Err:       domain.ErrMissingField,
		}
	}
	w.path[st] = true
	defer delete(w.path, st)

	node := st.RootOfSubTrace
	s := &span{
		traceID:   w.traceID,
		id:        id,
		parentID:  parentID,
		service:   st.Application,
		operation: st.BusinessTransaction,
		host:      xtraceHost(st),
		start:     node.Timestamp * 1000,
		duration:  float64(node.ResponseTime) / 1000,
		tags:      make(map[string]any),
	}
	if node.CircuitBreaker != "" {
		s.tags[w.opts.CircuitBreakerTag] = node.CircuitBreaker
	}
	if node.LoadBalancer != "" {
		s.tags[w.opts.LoadBalancerTag] = node.LoadBalancer
	}
	if len(node.Labels) > 0 {
		s.tags["labels"] = strings.Join(node.Labels, ",")
	}
	if node.Failed {
		s.failed, s.code = true, "error"
		s.tags["error"] = true
	}
	w.fb.spans = append(w.fb.spans, s)

	for i, child := range node.Children {
		if child.TargetSubTrace == nil {
			continue
		}
		if err := w.walk(child.TargetSubTrace, id+"."+strconv.Itoa(i), id); err != nil {
			return err
		}
	}
	return nil
}

func xtraceHost(st *XSubTrace) string {
	if st.Port == nil || *st.Port == -1 {
		return st.Host
	}
	port := strconv.Itoa(*st.Port)
	if strings.Contains(st.Host, port) {
		return st.Host
	}
	return st.Host + ":" + port
}
