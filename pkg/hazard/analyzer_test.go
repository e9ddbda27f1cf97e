package hazard

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/archextract/pkg/model"
)

func observe(op *model.Operation, durations ...float64) {
	for i, d := range durations {
		op.Observe(fmt.Sprintf("t/%03d", i), "h1", int64(i), d, nil, nil)
	}
}

// steady returns n samples of v followed by extra.
func steady(n int, v float64, extra ...float64) []float64 {
	out := make([]float64, 0, n+len(extra))
	for i := 0; i < n; i++ {
		out = append(out, v)
	}
	return append(out, extra...)
}

func TestScreenSeries(t *testing.T) {
	// Nineteen samples at 100 and one at 1000: the sample standard deviation
	// is about 201, so 1000 lies beyond the fixed factor of three.
	s := ScreenSeries(steady(19, 100, 1000), DefaultOutlierFactor)
	assert.Len(t, s.Kept, 19)
	assert.Equal(t, []float64{1000}, s.Outliers)
	assert.InDelta(t, 900.0, s.Spike, 1e-9)
	assert.Zero(t, s.Spread)

	s = ScreenSeries([]float64{10, 30, 20, 25}, DefaultOutlierFactor)
	assert.Empty(t, s.Outliers)
	assert.InDelta(t, 2.0/3.0, s.Spread, 1e-9)
	assert.Zero(t, s.Spike)
}

func TestScreenSeriesDegenerate(t *testing.T) {
	assert.Equal(t, Screen{}, ScreenSeries(nil, 3))

	s := ScreenSeries([]float64{42}, 3)
	assert.Equal(t, []float64{42}, s.Kept)
	assert.Zero(t, s.Spread)

	s = ScreenSeries([]float64{0, 0, 0}, 3)
	assert.Zero(t, s.Spread, "all-zero durations have no defined spread")
}

func TestScreenSeriesSmallSamplesCannotSpike(t *testing.T) {
	// With n samples no point can exceed (n-1)/sqrt(n) sample deviations, so
	// short series never produce outliers at the fixed factor of three.
	s := ScreenSeries([]float64{1, 1, 1, 1, 1000}, DefaultOutlierFactor)
	assert.Empty(t, s.Outliers)
	assert.InDelta(t, 0.999, s.Spread, 1e-9)
}

func TestAnalyzePromotesToService(t *testing.T) {
	m := model.New()
	cart := m.EnsureService("cart")
	observe(cart.EnsureOperation("add"), steady(19, 100, 1000)...)
	observe(cart.EnsureOperation("remove"), steady(19, 100, 2000)...)
	observe(cart.EnsureOperation("list"), steady(10, 100)...)
	catalog := m.EnsureService("catalog")
	observe(catalog.EnsureOperation("get"), 10, 30, 20, 25)

	report := Analyze(m, DefaultConfig())

	spikes := report[TypeResponseTimeSpike]
	require.Len(t, spikes, 2)
	assert.Equal(t, "cart/add", spikes[0].PropertyName)
	assert.InDelta(t, 900.0, spikes[0].Value, 1e-9)
	assert.Equal(t, "cart/remove", spikes[1].PropertyName)
	assert.Equal(t, []int{cart.Operations["add"].ID}, spikes[0].Edges)

	failures := report[TypeServiceFailure]
	require.Len(t, failures, 1, "one service hazard per service and kind")
	assert.Equal(t, "cart", failures[0].PropertyName)
	assert.Equal(t, []int{cart.ID}, failures[0].Nodes)

	deviations := report[TypeResponseTimeDeviation]
	require.Len(t, deviations, 1)
	assert.Equal(t, "catalog/get", deviations[0].PropertyName)

	degraded := report[TypeDecreasedServicePerformance]
	require.Len(t, degraded, 1)
	assert.Equal(t, "catalog", degraded[0].PropertyName)

	assert.Equal(t, 5, report.Count())
}

func TestHazardProfiles(t *testing.T) {
	tests := []struct {
		typ      Type
		property PropertyType
		metric   Metric
		keyword  Keyword
	}{
		{TypeResponseTimeSpike, PropertyOperation, MetricResponseTime, KeywordMoreThan},
		{TypeResponseTimeDeviation, PropertyOperation, MetricResponseTime, KeywordDifferBy},
		{TypeServiceFailure, PropertyService, MetricThroughput, KeywordNo},
		{TypeDecreasedServicePerformance, PropertyService, MetricThroughput, KeywordLessThan},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			h := newHazard(1, tt.typ, "x", 0)
			assert.Equal(t, tt.property, h.PropertyType)
			assert.Equal(t, tt.metric, h.Metric)
			assert.Equal(t, tt.keyword, h.Keyword)
			assert.Equal(t, ConsequenceMinor, h.Consequence)
			assert.Equal(t, LikelihoodUnlikely, h.Likelihood)
			assert.Equal(t, 1, h.Severity)
		})
	}
}

func TestHazardJSONCarriesSeverity(t *testing.T) {
	out, err := json.Marshal(newHazard(3, TypeServiceFailure, "cart", 0))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, 1.0, doc["severity"])
	assert.Equal(t, 1.0, doc["consequence"])
	assert.Equal(t, 1.0, doc["likelihood"])
	assert.Equal(t, "cart", doc["property_name"])
}

func TestAnalyzeThresholdsAreConfigurable(t *testing.T) {
	m := model.New()
	observe(m.EnsureService("a").EnsureOperation("x"), 10, 30, 20, 25)

	assert.Empty(t, Analyze(m, Config{DeviationThreshold: 0.7, OutlierFactor: 3}))
	assert.Len(t, Analyze(m, Config{DeviationThreshold: 0.6, OutlierFactor: 3})[TypeResponseTimeDeviation], 1)
}

func TestAnalyzeHonoursZeroDeviationThreshold(t *testing.T) {
	m := model.New()
	observe(m.EnsureService("a").EnsureOperation("x"), 100, 101, 100, 100)

	assert.Empty(t, Analyze(m, DefaultConfig())[TypeResponseTimeDeviation])
	deviations := Analyze(m, Config{DeviationThreshold: 0, OutlierFactor: DefaultOutlierFactor})[TypeResponseTimeDeviation]
	require.Len(t, deviations, 1, "any spread exceeds a zero threshold")
	assert.InDelta(t, 1-100.0/101.0, deviations[0].Value, 1e-9)
}

func TestAnalyzeIsRepeatable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := model.New()
		services := rapid.IntRange(1, 4).Draw(t, "services")
		for s := 0; s < services; s++ {
			svc := m.EnsureService(fmt.Sprintf("svc%d", s))
			ops := rapid.IntRange(1, 3).Draw(t, "operations")
			for o := 0; o < ops; o++ {
				ds := rapid.SliceOfN(rapid.Float64Range(0, 5000), 0, 40).Draw(t, "durations")
				observe(svc.EnsureOperation(fmt.Sprintf("op%d", o)), ds...)
			}
		}

		first := Analyze(m, DefaultConfig())
		second := Analyze(m, DefaultConfig())
		if fmt.Sprint(first) != fmt.Sprint(second) {
			t.Fatalf("reports differ:\n%v\n%v", first, second)
		}
		for _, hs := range first {
			for _, h := range hs {
				if h.Value < 0 {
					t.Fatalf("negative hazard value %+v", h)
				}
			}
		}
	})
}
