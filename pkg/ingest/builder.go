package ingest

import (
	"fmt"
	"math"
	"strconv"

	"github.com/polisai/archextract/internal/governance"
	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/model"
)

// endpoint registers a service instance that may not own any span, such as
// the remote side of a Zipkin client span.
type endpoint struct {
	service string
	host    string
	tags    map[string]string
}

// span is the format independent view of one traced call.
type span struct {
	traceID   string
	id        string
	parentID  string
	service   string
	operation string
	host      string
	// start and duration are microseconds.
	start    int64
	duration float64
	tags     map[string]any
	logs     []model.LogEntry
	failed   bool
	code     string
}

func (s *span) callID() string {
	return s.traceID + "/" + s.id
}

func (s *span) parentCallID() string {
	if s.parentID == "" {
		return ""
	}
	return s.traceID + "/" + s.parentID
}

// flatBatch is what every format normalizer produces.
type flatBatch struct {
	format    domain.Format
	endpoints []endpoint
	spans     []*span
}

// Stats reports what one Ingest call added.
type Stats struct {
	Spans        int
	Duplicates   int
	Ignored      int
	Dependencies int
	Spliced      int
}

type builder struct {
	m     *model.Model
	opts  compiled
	batch *flatBatch

	index map[string]*span
	fresh map[string]bool
	stats Stats
}

func build(m *model.Model, fb *flatBatch, opts compiled) (Stats, error) {
	b := &builder{
		m:     m,
		opts:  opts,
		batch: fb,
		index: make(map[string]*span, len(fb.spans)),
		fresh: make(map[string]bool, len(fb.spans)),
	}
	for _, s := range fb.spans {
		if _, dup := b.index[s.callID()]; !dup {
			b.index[s.callID()] = s
		}
	}
	b.registerServices()
	b.observeOperations()
	if err := b.wireDependencies(); err != nil {
		return b.stats, err
	}
	return b.stats, nil
}

// registerServices is the first pass: services, hosts and service tags.
func (b *builder) registerServices() {
	for _, ep := range b.batch.endpoints {
		if ep.service == "" {
			continue
		}
		svc := b.m.EnsureService(ep.service)
		svc.AddHost(ep.host)
		for k, v := range ep.tags {
			if _, ok := svc.Tags[k]; !ok {
				svc.Tags[k] = v
			}
		}
	}
	for _, s := range b.batch.spans {
		b.m.EnsureService(s.service).AddHost(s.host)
	}
}

// observeOperations is the second pass: one observation per call id plus
// the policy tags and instance selection history.
func (b *builder) observeOperations() {
	for _, s := range b.batch.spans {
		if b.opts.ignored(s.operation) {
			b.stats.Ignored++
			continue
		}
		svc := b.m.Service(s.service)
		op := svc.EnsureOperation(s.operation)
		if b.fresh[s.callID()] || !op.Observe(s.callID(), s.host, s.start, s.duration, s.tags, s.logs) {
			b.stats.Duplicates++
			continue
		}
		b.fresh[s.callID()] = true
		b.stats.Spans++

		if s.host != "" {
			svc.LoadBalancer.Observe(s.callID(), s.start, s.host)
		}
		if v, ok := s.tags[b.opts.CircuitBreakerTag]; ok && op.CircuitBreaker == nil {
			if cb, on := governance.ParseCircuitBreakerTag(v); on {
				op.CircuitBreaker = &cb
			}
		}
		if v, ok := s.tags[b.opts.LoadBalancerTag]; ok {
			strategy, err := governance.ParseLoadBalancingStrategy(fmt.Sprint(v))
			if err != nil {
				b.opts.Logger.Warn("ignoring load balancer hint",
					"service", s.service,
					"value", v,
					"error", err,
				)
			} else if strategy.Known() {
				svc.LoadBalancer.Hint(strategy)
			}
		}
	}
}

// wireDependencies is the third pass. Each freshly observed span is linked
// to its nearest non-ignored ancestor; the overhead of any ignored hops in
// between becomes a latency sample on the dependency.
func (b *builder) wireDependencies() error {
	for _, s := range b.batch.spans {
		if !b.fresh[s.callID()] {
			continue
		}
		delete(b.fresh, s.callID())

		caller, overhead, hops, err := b.resolveCaller(s)
		if err != nil {
			return err
		}
		if caller == nil {
			continue
		}
		callerOp := b.m.Operation(caller.service, caller.operation)
		if callerOp == nil {
			continue
		}
		dep := callerOp.AddDependency(s.service, s.operation, caller.callID())
		if hops > 0 {
			dep.AddLatency(overhead)
			b.stats.Spliced++
		}
		b.stats.Dependencies++

		start := float64(s.start)
		callerOp.Retry.Record(caller.callID(), model.CallRecord{
			Timestamp: s.start,
			Callee:    model.OperationKey(s.service, s.operation),
			Failed:    s.failed,
			Code:      s.code,
			Start:     start,
			End:       start + s.duration,
		})
	}
	return nil
}

func (b *builder) resolveCaller(s *span) (*span, float64, int, error) {
	var overhead float64
	hops := 0
	cur := s
	seen := map[*span]bool{s: true}
	for {
		parent, ok := b.index[cur.parentCallID()]
		if !ok {
			return nil, 0, 0, nil
		}
		if seen[parent] {
			return nil, 0, 0, &domain.StructuralError{
				Format:    b.batch.format,
				TraceID:   s.traceID,
				SpanID:    s.id,
				Service:   s.service,
				Operation: s.operation,
				Ref:       parent.id,
				Err:       domain.ErrCyclicCallTree,
			}
		}
		seen[parent] = true
		if !b.opts.ignored(parent.operation) {
			return parent, overhead, hops, nil
		}
		overhead += math.Max(0, parent.duration-cur.duration)
		hops++
		cur = parent
	}
}

// failure derives the error flag and marker from conventional tags.
func failure(tags map[string]any) (bool, string) {
	code := ""
	for _, key := range []string{"http.status_code", "http.response.status_code"} {
		if v, ok := tags[key]; ok {
			code = fmt.Sprint(v)
			if n, err := strconv.ParseFloat(code, 64); err == nil && n >= 400 {
				return true, code
			}
		}
	}
	if v, ok := tags["error"]; ok && governance.Truthy(v) {
		if code == "" {
			code = "error"
		}
		return true, code
	}
	return false, ""
}
