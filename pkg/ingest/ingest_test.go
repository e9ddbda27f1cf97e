package ingest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/archextract/internal/governance"
	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/inference"
	"github.com/polisai/archextract/pkg/model"
)

func TestIngestJaeger(t *testing.T) {
	m := model.New()
	stats, err := Ingest(m, shopTrace(), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{"cart", "catalog", "frontend"}, m.ServiceNames())
	assert.Equal(t, 4, stats.Spans)
	assert.Equal(t, 3, stats.Dependencies)

	front := m.Service("frontend")
	assert.Equal(t, []string{"fe-1"}, front.Hosts, "hostname tag wins over ip")
	assert.Equal(t, "frontend", front.Tags["serviceName"])

	checkout := m.Operation("frontend", "GET /checkout")
	require.NotNil(t, checkout)
	require.Len(t, checkout.Dependencies, 2, "repeated calls share one dependency")
	add := checkout.Dependency("cart", "add")
	require.NotNil(t, add)
	assert.Equal(t, []string{"t1/s1"}, add.CallerSpanIDs())

	calls := checkout.Retry.Calls("t1/s1")
	require.Len(t, calls, 3)
	assert.Equal(t, model.CallRecord{Timestamp: 2_000, Callee: "cart/add", Failed: true, Code: "503", Start: 2_000, End: 5_000}, calls[0])
	assert.False(t, calls[1].Failed)

	cartAdd := m.Operation("cart", "add")
	require.NotNil(t, cartAdd.CircuitBreaker)
	assert.Equal(t, governance.DefaultCircuitBreaker(), *cartAdd.CircuitBreaker)
	assert.Equal(t, []float64{3_000, 2_000}, []float64{cartAdd.Durations["t1/s2"], cartAdd.Durations["t1/s3"]})
	assert.Len(t, cartAdd.ResponseTimes["cart-1"], 2)

	assert.Equal(t, map[string]model.Selection{
		"t1/s2": {Timestamp: 2_000, Instance: "cart-1"},
		"t1/s3": {Timestamp: 9_000, Instance: "cart-1"},
	}, m.Service("cart").LoadBalancer.History)
}

func TestIngestedRetriesAreDetected(t *testing.T) {
	m := model.New()
	_, err := Ingest(m, shopTrace(), DefaultOptions())
	require.NoError(t, err)

	retry := m.Operation("frontend", "GET /checkout").Retry
	inference.DetectRetries(retry)
	require.Len(t, retry.Sequences, 1)
	assert.Equal(t, "cart/add", retry.Sequences[0].Callee)
	assert.Len(t, retry.Sequences[0].Calls, 2)
}

func TestIngestUnknownProcess(t *testing.T) {
	batch := shopTrace()
	batch.Data[0].Spans[2].ProcessID = "p9"

	_, err := Ingest(model.New(), batch, DefaultOptions())
	require.ErrorIs(t, err, domain.ErrUnknownProcess)

	var serr *domain.StructuralError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "s3", serr.SpanID)
	assert.Equal(t, "p9", serr.Ref)
	assert.Contains(t, err.Error(), "s3")
	assert.Contains(t, err.Error(), "add")
}

func TestIngestIsIdempotentPerCall(t *testing.T) {
	m := model.New()
	_, err := Ingest(m, shopTrace(), DefaultOptions())
	require.NoError(t, err)
	before := m.Stats()

	stats, err := Ingest(m, shopTrace(), DefaultOptions())
	require.NoError(t, err)
	assert.Zero(t, stats.Spans)
	assert.Equal(t, 4, stats.Duplicates)
	assert.Equal(t, before, m.Stats())
	assert.Equal(t, 3, m.Operation("frontend", "GET /checkout").Retry.HistoryLen())
}

func TestIngestIgnorePatternSplicesHops(t *testing.T) {
	batch := JaegerBatch{Data: []JaegerTrace{{
		TraceID: "t1",
		Processes: map[string]JaegerProcess{
			"p1": process("frontend", "fe-1"),
			"p2": process("gateway", "gw-1"),
			"p3": process("cart", "cart-1"),
		},
		Spans: []JaegerSpan{
			jspan("s1", "", "p1", "checkout", 0, 100),
			jspan("s2", "s1", "p2", "GET", 10, 80),
			jspan("s3", "s2", "p2", "GET", 12, 70),
			jspan("s4", "s3", "p3", "add", 15, 60),
		},
	}}}

	m := model.New()
	opts := DefaultOptions()
	opts.IgnorePattern = "GET"
	stats, err := Ingest(m, batch, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Ignored)
	assert.Equal(t, 1, stats.Spliced)

	assert.Nil(t, m.Operation("gateway", "GET"), "ignored spans never become operations")
	dep := m.Operation("frontend", "checkout").Dependency("cart", "add")
	require.NotNil(t, dep)
	assert.Equal(t, []string{"t1/s1"}, dep.CallerSpanIDs())
	// (70 - 60) + (80 - 70)
	assert.Equal(t, []float64{20}, dep.Latencies)
	assert.Equal(t, []string{"gw-1"}, m.Service("gateway").Hosts, "hosts are still registered")
}

func TestIgnorePatternMatchesWholeName(t *testing.T) {
	c, err := Options{IgnorePattern: "GET"}.compile()
	require.NoError(t, err)
	assert.True(t, c.ignored("GET"))
	assert.False(t, c.ignored("GET /cart"))

	c, err = Options{IgnorePattern: "GET.*"}.compile()
	require.NoError(t, err)
	assert.True(t, c.ignored("GET /cart"))

	_, err = Ingest(model.New(), shopTrace(), Options{IgnorePattern: "("})
	assert.ErrorIs(t, err, domain.ErrConfigInvalid)
}

func TestIngestMissingParentIsRoot(t *testing.T) {
	batch := shopTrace()
	batch.Data[0].Spans = batch.Data[0].Spans[1:]

	m := model.New()
	_, err := Ingest(m, batch, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, m.Operation("cart", "add").Dependencies)
	assert.Nil(t, m.Operation("frontend", "GET /checkout"))
}

func TestIngestCyclicReferences(t *testing.T) {
	batch := JaegerBatch{Data: []JaegerTrace{{
		TraceID:   "t1",
		Processes: map[string]JaegerProcess{"p1": process("a", "a-1")},
		Spans: []JaegerSpan{
			jspan("s1", "s2", "p1", "GET", 0, 10),
			jspan("s2", "s1", "p1", "GET", 0, 10),
			jspan("s3", "s2", "p1", "x", 0, 10),
		},
	}}}
	opts := DefaultOptions()
	opts.IgnorePattern = "GET"
	_, err := Ingest(model.New(), batch, opts)
	assert.ErrorIs(t, err, domain.ErrCyclicCallTree)
}

func TestIngestLoadBalancerHint(t *testing.T) {
	batch := shopTrace()
	batch.Data[0].Spans[3].Tags = []JaegerKeyValue{kv("pattern.loadBalancer", "round-robin")}

	m := model.New()
	_, err := Ingest(m, batch, DefaultOptions())
	require.NoError(t, err)
	lb := m.Service("catalog").LoadBalancer
	assert.True(t, lb.Hinted)
	assert.Equal(t, governance.StrategyRoundRobin, lb.Strategy)
}

func TestIngestAllKeepsGoodBatches(t *testing.T) {
	bad := shopTrace()
	bad.Data[0].TraceID = "t2"
	for i := range bad.Data[0].Spans {
		bad.Data[0].Spans[i].TraceID = "t2"
	}
	bad.Data[0].Spans[3].ProcessID = "missing"

	m := model.New()
	stats, err := IngestAll(m, []Batch{shopTrace(), bad}, DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBatchFailed)
	assert.ErrorIs(t, err, domain.ErrUnknownProcess)
	assert.Contains(t, err.Error(), "batch 1")

	assert.Equal(t, 4, stats.Spans)
	assert.Equal(t, 4, m.Stats().Spans)
	op := m.Operation("frontend", "GET /checkout")
	assert.False(t, op.HasSpan("t2/s1"), "failed batch leaves no partial state")
}

func TestIngestRejectsNilAndForeignBatches(t *testing.T) {
	_, err := Ingest(model.New(), nil, DefaultOptions())
	assert.ErrorIs(t, err, domain.ErrEmptyBatch)
}

// Every dependency probability derived from an ingested random call tree
// lies in [0,1], no operation depends on itself unless a span called its own
// operation, and recomputation is stable.
func TestIngestedProbabilitiesAreBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		services := []string{"a", "b", "c"}
		ops := []string{"x", "y"}
		n := rapid.IntRange(1, 40).Draw(t, "spans")

		trace := JaegerTrace{TraceID: "t", Processes: map[string]JaegerProcess{}}
		for _, s := range services {
			trace.Processes[s] = process(s, s+"-1")
		}
		for i := 0; i < n; i++ {
			parent := ""
			if i > 0 && rapid.Bool().Draw(t, "has_parent") {
				parent = fmt.Sprintf("s%d", rapid.IntRange(0, i-1).Draw(t, "parent"))
			}
			svc := rapid.SampledFrom(services).Draw(t, "service")
			op := rapid.SampledFrom(ops).Draw(t, "operation")
			sp := jspan(fmt.Sprintf("s%d", i), parent, svc, op, int64(i*10), 5)
			sp.TraceID = "t"
			trace.Spans = append(trace.Spans, sp)
		}

		m := model.New()
		if _, err := Ingest(m, JaegerBatch{Data: []JaegerTrace{trace}}, DefaultOptions()); err != nil {
			t.Fatalf("ingest: %v", err)
		}
		inference.CalculateProbabilities(m)
		first := map[string]float64{}
		m.EachOperation(func(_ *model.Service, op *model.Operation) {
			for _, dep := range op.Dependencies {
				if dep.Probability < 0 || dep.Probability > 1 {
					t.Fatalf("probability %v out of range", dep.Probability)
				}
				first[op.Key()+">"+dep.Key()] = dep.Probability
			}
		})
		inference.CalculateProbabilities(m)
		m.EachOperation(func(_ *model.Service, op *model.Operation) {
			for _, dep := range op.Dependencies {
				if first[op.Key()+">"+dep.Key()] != dep.Probability {
					t.Fatalf("probability of %s changed on recomputation", dep.Key())
				}
			}
		})
	})
}

func TestStructuralErrorsAreSentinels(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &domain.StructuralError{Err: domain.ErrMissingField})
	assert.True(t, errors.Is(err, domain.ErrMissingField))
}
