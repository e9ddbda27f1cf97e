package ingest

import (
	"errors"
	"fmt"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/model"
)

// Ingest adds one batch to m. A structural failure stops the batch and is
// returned as a *domain.StructuralError; m may then hold a partial batch and
// must not be treated as valid. Use IngestAll to keep m untouched on
// failure.
func Ingest(m *model.Model, batch Batch, opts Options) (Stats, error) {
	c, err := opts.compile()
	if err != nil {
		return Stats{}, err
	}
	fb, err := flatten(batch, c)
	if err != nil {
		return Stats{}, err
	}
	stats, err := build(m, fb, c)
	if err != nil {
		return stats, err
	}
	m.Valid = false
	c.Logger.Debug("batch ingested",
		"format", batch.Format(),
		"spans", stats.Spans,
		"duplicates", stats.Duplicates,
		"ignored", stats.Ignored,
		"dependencies", stats.Dependencies,
	)
	return stats, nil
}

func flatten(batch Batch, opts compiled) (*flatBatch, error) {
	switch b := batch.(type) {
	case JaegerBatch:
		return flattenJaeger(b, opts)
	case *JaegerBatch:
		return flattenJaeger(*b, opts)
	case ZipkinBatch:
		return flattenZipkin(b, opts)
	case *ZipkinBatch:
		return flattenZipkin(*b, opts)
	case OpenXTraceBatch:
		return flattenOpenXTrace(b, opts)
	case *OpenXTraceBatch:
		return flattenOpenXTrace(*b, opts)
	case OTLPBatch:
		return flattenOTLP(b, opts)
	case *OTLPBatch:
		return flattenOTLP(*b, opts)
	case nil:
		return nil, domain.ErrEmptyBatch
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnsupportedFormat, batch)
	}
}

// IngestIsolated ingests batch into a fresh model sharing nothing with any
// other. The result can be merged with model.Merge once it succeeded.
func IngestIsolated(batch Batch, opts Options) (*model.Model, Stats, error) {
	scratch := model.New()
	stats, err := Ingest(scratch, batch, opts)
	if err != nil {
		return nil, stats, err
	}
	return scratch, stats, nil
}

// IngestAll ingests batches in order, each into its own scratch model that
// is merged into m only when the batch succeeded. Failed batches are
// reported together and never leave partial state in m.
func IngestAll(m *model.Model, batches []Batch, opts Options) (Stats, error) {
	var total Stats
	var errs []error
	for i, batch := range batches {
		scratch, stats, err := IngestIsolated(batch, opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: batch %d: %w", domain.ErrBatchFailed, i, err))
			continue
		}
		model.Merge(m, scratch)
		total.Add(stats)
	}
	return total, errors.Join(errs...)
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Spans += o.Spans
	s.Duplicates += o.Duplicates
	s.Ignored += o.Ignored
	s.Dependencies += o.Dependencies
	s.Spliced += o.Spliced
}
