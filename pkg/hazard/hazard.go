package hazard

// Keyword is the HAZOP guide word describing a deviation.
type Keyword string

const (
	KeywordNo        Keyword = "no"
	KeywordNot       Keyword = "not"
	KeywordLessThan  Keyword = "less than"
	KeywordMoreThan  Keyword = "more than"
	KeywordOtherThan Keyword = "other than"
	KeywordDifferBy  Keyword = "differ by"
)

// Metric is the observable a hazard is measured on.
type Metric string

const (
	MetricAvailability Metric = "availability"
	MetricResponseTime Metric = "response time"
	MetricThroughput   Metric = "throughput"
)

// PropertyType names the kind of entity a hazard is attached to.
type PropertyType string

const (
	PropertyService   PropertyType = "service"
	PropertyOperation PropertyType = "operation"
)

// Consequence rates the impact of a hazard.
type Consequence int

const (
	ConsequenceMinor Consequence = iota + 1
	ConsequenceSerious
	ConsequenceCritical
)

// Likelihood rates how probable a hazard is.
type Likelihood int

const (
	LikelihoodUnlikely Likelihood = iota + 1
	LikelihoodPossible
	LikelihoodProbable
)

// Type is the kind of a hazard and the key of a Report.
type Type string

const (
	TypeResponseTimeSpike           Type = "Response Time Spike"
	TypeResponseTimeDeviation       Type = "Response Time Deviation"
	TypeServiceFailure              Type = "Service Failure"
	TypeDecreasedServicePerformance Type = "Decreased Service Performance"
)

// Types lists every hazard type in report order.
func Types() []Type {
	return []Type{
		TypeResponseTimeSpike,
		TypeResponseTimeDeviation,
		TypeServiceFailure,
		TypeDecreasedServicePerformance,
	}
}

type profile struct {
	property PropertyType
	metric   Metric
	keyword  Keyword
}

var profiles = map[Type]profile{
	TypeResponseTimeSpike:           {PropertyOperation, MetricResponseTime, KeywordMoreThan},
	TypeResponseTimeDeviation:       {PropertyOperation, MetricResponseTime, KeywordDifferBy},
	TypeServiceFailure:              {PropertyService, MetricThroughput, KeywordNo},
	TypeDecreasedServicePerformance: {PropertyService, MetricThroughput, KeywordLessThan},
}

// Every detected hazard is rated minor and unlikely until a risk model
// distinguishes them.
const (
	defaultConsequence = ConsequenceMinor
	defaultLikelihood  = LikelihoodUnlikely
)

// Hazard is a derived anomaly record. Hazards are recomputed on every
// analysis pass and never mutated afterwards.
type Hazard struct {
	ID           int          `json:"id"`
	Type         Type         `json:"type"`
	PropertyType PropertyType `json:"property_type"`
	// PropertyName is the service name or the "service/operation" key.
	PropertyName string      `json:"property_name"`
	Metric       Metric      `json:"metric"`
	Keyword      Keyword     `json:"keyword"`
	Value        float64     `json:"value"`
	Consequence  Consequence `json:"consequence"`
	Likelihood   Likelihood  `json:"likelihood"`
	// Severity is consequence times likelihood.
	Severity int `json:"severity"`
	// Nodes holds affected service ids, Edges affected operation ids.
	Nodes []int `json:"nodes,omitempty"`
	Edges []int `json:"edges,omitempty"`
}

func newHazard(id int, t Type, name string, value float64) Hazard {
	p := profiles[t]
	return Hazard{
		ID:           id,
		Type:         t,
		PropertyType: p.property,
		PropertyName: name,
		Metric:       p.metric,
		Keyword:      p.keyword,
		Value:        value,
		Consequence:  defaultConsequence,
		Likelihood:   defaultLikelihood,
		Severity:     int(defaultConsequence) * int(defaultLikelihood),
	}
}

// Report maps hazard types to the hazards found, in service then operation
// name order.
type Report map[Type][]Hazard

// Count returns the number of hazards in the report.
func (r Report) Count() int {
	n := 0
	for _, hs := range r {
		n += len(hs)
	}
	return n
}

// First returns the first hazard of type t.
func (r Report) First(t Type) (Hazard, bool) {
	hs := r[t]
	if len(hs) == 0 {
		return Hazard{}, false
	}
	return hs[0], true
}
