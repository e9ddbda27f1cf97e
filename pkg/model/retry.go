package model

import "github.com/polisai/archextract/internal/governance"

// CallRecord is one outgoing call made from a calling span. Start and End are
// microseconds since the epoch.
type CallRecord struct {
	Timestamp int64
	Callee    string
	Failed    bool
	// Code is the raw error marker (status code or error tag) when present.
	Code  string
	Start float64
	End   float64
}

// Fit is the outcome of fitting a backoff curve to one retry sequence.
type Fit struct {
	Policy governance.BackoffPolicy
	// Error is the mean squared error of the chosen curve. It is
	// math.MaxFloat64 when the fit is under-determined.
	Error float64
	// Fitted is false when no strategy could be assigned.
	Fitted bool
}

// RetrySequence is a run of back-to-back calls to one callee that started
// with a failure.
type RetrySequence struct {
	CallerSpan string
	Callee     string
	Calls      []CallRecord
	Fit        Fit
}

// RetrySummary is the merged view over every sequence of an operation.
type RetrySummary struct {
	Policy    governance.BackoffPolicy
	Error     float64
	Sequences int
}

// Retry tracks an operation's outgoing call history and the retry behaviour
// recovered from it.
type Retry struct {
	order   []string
	history map[string][]CallRecord

	Sequences []RetrySequence
	Summary   *RetrySummary
}

// NewRetry returns an empty tracker.
func NewRetry() *Retry {
	return &Retry{history: make(map[string][]CallRecord)}
}

// Record appends a call made from callerSpan.
func (r *Retry) Record(callerSpan string, rec CallRecord) {
	if _, ok := r.history[callerSpan]; !ok {
		r.order = append(r.order, callerSpan)
	}
	r.history[callerSpan] = append(r.history[callerSpan], rec)
}

// CallerSpans lists caller span ids in first-recorded order.
func (r *Retry) CallerSpans() []string {
	return append([]string(nil), r.order...)
}

// Calls returns the history of one caller span in recording order.
func (r *Retry) Calls(callerSpan string) []CallRecord {
	return r.history[callerSpan]
}

// HistoryLen counts recorded calls.
func (r *Retry) HistoryLen() int {
	n := 0
	for _, calls := range r.history {
		n += len(calls)
	}
	return n
}

// Reset discards derived sequences and the summary, keeping the history.
func (r *Retry) Reset() {
	r.Sequences = nil
	r.Summary = nil
}
