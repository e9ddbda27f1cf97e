package inference

import (
	"sort"

	"github.com/polisai/archextract/pkg/model"
)

// DetectRetries scans the tracker's call history, fits every retry sequence
// and stores the sequences and merged summary on the tracker. Previous
// results are discarded first.
func DetectRetries(r *model.Retry) {
	r.Reset()
	r.Sequences = FindSequences(r)
	for i := range r.Sequences {
		r.Sequences[i].Fit = FitSequence(r.Sequences[i].Calls)
	}
	r.Summary = MergeSequences(r.Sequences)
}

// FindSequences extracts retry runs from each calling span's history, in the
// order caller spans were first recorded. A run starts when a callee is
// invoked twice in a row and the first call failed; it continues while the
// callee repeats and ends on a successful call or a different callee.
func FindSequences(r *model.Retry) []model.RetrySequence {
	var out []model.RetrySequence
	for _, caller := range r.CallerSpans() {
		calls := sortedCalls(r.Calls(caller))
		out = append(out, scanCalls(caller, calls)...)
	}
	return out
}

func sortedCalls(calls []model.CallRecord) []model.CallRecord {
	sorted := append([]model.CallRecord(nil), calls...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].Start < sorted[j].Start
	})
	return sorted
}

func scanCalls(caller string, calls []model.CallRecord) []model.RetrySequence {
	var (
		out []model.RetrySequence
		cur *model.RetrySequence
	)
	closeRun := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}

	for i, call := range calls {
		if cur != nil {
			if call.Callee == cur.Callee {
				cur.Calls = append(cur.Calls, call)
				if !call.Failed {
					closeRun()
				}
				continue
			}
			closeRun()
		}

		if i == 0 {
			continue
		}
		prev := calls[i-1]
		if prev.Callee != call.Callee || !prev.Failed {
			continue
		}
		cur = &model.RetrySequence{
			CallerSpan: caller,
			Callee:     call.Callee,
			Calls:      []model.CallRecord{prev, call},
		}
		if !call.Failed {
			closeRun()
		}
	}
	closeRun()
	return out
}
