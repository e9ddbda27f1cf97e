package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/polisai/archextract/pkg/architecture"
	"github.com/polisai/archextract/pkg/demand"
	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/hazard"
	"github.com/polisai/archextract/pkg/inference"
	"github.com/polisai/archextract/pkg/ingest"
	"github.com/polisai/archextract/pkg/model"
	"github.com/polisai/archextract/pkg/policy"
	"github.com/polisai/archextract/pkg/storage"
	"github.com/polisai/archextract/pkg/telemetry"
)

// Options configures a Pipeline. Thresholds are used as given, so start from
// DefaultOptions or OptionsFromConfig rather than the zero value.
type Options struct {
	Ingest    ingest.Options
	Inference inference.Config
	Hazard    hazard.Config

	ValidationMode domain.ValidationMode
	CycleMode      domain.CycleMode

	// Analyze enables hazard analysis.
	Analyze bool
	// Export, when set, serializes the architecture into Result.Export.
	Export *architecture.ExportOptions

	// Checkers run after model validation under Posture.
	Checkers []policy.Checker
	Posture  policy.Mode
	// EnforcePolicy makes policy violations invalidate the run.
	EnforcePolicy bool

	// Estimator, when set, estimates operation demand after inference.
	Estimator demand.Estimator
	Demand    demand.Config

	// StrictBatches aborts the run on the first failed batch instead of
	// merging the rest.
	StrictBatches bool
	// Parallelism bounds concurrent batch ingestion. Zero uses GOMAXPROCS.
	Parallelism int

	// Sources names the inputs recorded with stored runs.
	Sources []string
	Store   storage.ModelStore
	Logger  *slog.Logger
}

// DefaultOptions runs ingestion, inference and validation with the default
// analysis thresholds.
func DefaultOptions() Options {
	return Options{
		Ingest:         ingest.DefaultOptions(),
		Inference:      inference.DefaultConfig(),
		Hazard:         hazard.DefaultConfig(),
		Demand:         demand.DefaultConfig(),
		ValidationMode: domain.ValidationCollectAll,
		CycleMode:      domain.CycleAll,
	}
}

// Result is the outcome of one run.
type Result struct {
	RunID        string
	Model        *model.Model
	Architecture *architecture.Architecture
	Stats        ingest.Stats
	Inference    inference.Result

	// Findings holds model, architecture and policy findings in that order.
	Findings         []domain.ValidationError
	ModelFindings    int
	CycleFindings    int
	PolicyViolations int
	Enforced         bool

	Hazards hazard.Report
	Export  []byte

	Batches       int
	FailedBatches int
	// BatchErrors joins the errors of failed batches.
	BatchErrors error
	Duration    time.Duration
}

// Valid reports whether the run produced a consistent model.
func (r *Result) Valid() bool {
	if r.ModelFindings > 0 || r.CycleFindings > 0 {
		return false
	}
	return !r.Enforced || r.PolicyViolations == 0
}

// Outcome classifies the run for metrics.
func (r *Result) Outcome() telemetry.Outcome {
	if r.Valid() {
		return telemetry.OutcomeOK
	}
	return telemetry.OutcomeInvalid
}

// Pipeline runs extractions with fixed options. It is safe for concurrent
// use as long as the configured checkers and store are.
type Pipeline struct {
	opts   Options
	chain  policy.Chain
	logger *slog.Logger
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Ingest.Logger == nil {
		opts.Ingest.Logger = logger
	}
	if opts.Inference.Logger == nil {
		opts.Inference.Logger = logger
	}
	if opts.ValidationMode == "" {
		opts.ValidationMode = domain.ValidationCollectAll
	}
	if opts.CycleMode == "" {
		opts.CycleMode = domain.CycleAll
	}
	return &Pipeline{
		opts:   opts,
		chain:  policy.NewChain(opts.Posture, logger, opts.Checkers...),
		logger: logger,
	}
}

// Run executes every stage over batches.
func (p *Pipeline) Run(ctx context.Context, batches []ingest.Batch) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: uuid.New().String(), Batches: len(batches)}

	ctx, span := telemetry.Tracer().Start(ctx, "archextract.run", trace.WithAttributes(
		attribute.String("run.id", res.RunID),
		attribute.Int("run.batches", len(batches)),
	))
	defer span.End()

	fail := func(err error) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.Duration = time.Since(start)
		telemetry.RecordRunMetrics(ctx, telemetry.RunMetrics{
			RunID:         res.RunID,
			Outcome:       telemetry.OutcomeFailed,
			Duration:      res.Duration,
			Batches:       res.Batches,
			FailedBatches: res.FailedBatches,
		})
		p.logger.Error("extraction failed", "run_id", res.RunID, "error", err)
		return nil, err
	}

	if len(batches) == 0 {
		return fail(domain.ErrEmptyBatch)
	}

	if err := p.stage(ctx, "ingest", func(ctx context.Context) error {
		return p.ingest(ctx, batches, res)
	}); err != nil {
		return fail(err)
	}

	if err := p.stage(ctx, "inference", func(ctx context.Context) error {
		inf, err := inference.Run(ctx, res.Model, p.opts.Inference)
		res.Inference = inf
		return err
	}); err != nil {
		return fail(err)
	}

	if p.opts.Estimator != nil {
		if err := p.stage(ctx, "demand", func(ctx context.Context) error {
			_, err := demand.Run(ctx, res.Model, p.opts.Estimator, p.opts.Demand, p.logger)
			return err
		}); err != nil {
			return fail(err)
		}
	}

	if err := p.stage(ctx, "validate", func(ctx context.Context) error {
		return p.validate(ctx, res)
	}); err != nil {
		return fail(err)
	}

	if p.opts.Analyze {
		_ = p.stage(ctx, "hazards", func(context.Context) error {
			res.Hazards = hazard.Analyze(res.Model, p.opts.Hazard)
			return nil
		})
	}

	if p.opts.Export != nil {
		if err := p.stage(ctx, "export", func(context.Context) error {
			out, err := res.Architecture.Export(res.Hazards, *p.opts.Export)
			res.Export = out
			return err
		}); err != nil {
			return fail(err)
		}
	}

	if p.opts.Store != nil {
		if _, err := p.opts.Store.Save(ctx, &storage.Run{
			ID:       res.RunID,
			Sources:  append([]string(nil), p.opts.Sources...),
			Model:    res.Model,
			Hazards:  res.Hazards,
			Findings: res.Findings,
			Export:   res.Export,
		}); err != nil {
			return fail(fmt.Errorf("store run: %w", err))
		}
	}

	res.Duration = time.Since(start)
	telemetry.RecordFindingsEvent(span, res.Valid(), len(res.Findings), res.PolicyViolations, res.Hazards.Count())
	telemetry.RecordRunMetrics(ctx, telemetry.RunMetrics{
		RunID:         res.RunID,
		Outcome:       res.Outcome(),
		Duration:      res.Duration,
		Batches:       res.Batches,
		FailedBatches: res.FailedBatches,
		Spans:         res.Stats.Spans,
		Findings:      len(res.Findings),
		Hazards:       res.Hazards.Count(),
	})

	stats := res.Model.Stats()
	p.logger.Info("extraction complete",
		"run_id", res.RunID,
		"valid", res.Valid(),
		"services", stats.Services,
		"operations", stats.Operations,
		"dependencies", stats.Dependencies,
		"findings", len(res.Findings),
		"hazards", res.Hazards.Count(),
		"failed_batches", res.FailedBatches,
		"duration", res.Duration,
	)
	return res, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "archextract.stage", trace.WithAttributes(
		attribute.String("stage.name", name),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// ingest decodes every batch into its own scratch model concurrently and
// merges the successful ones in input order.
func (p *Pipeline) ingest(ctx context.Context, batches []ingest.Batch, res *Result) error {
	type outcome struct {
		model *model.Model
		stats ingest.Stats
		err   error
	}
	outcomes := make([]outcome, len(batches))

	limit := p.opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, stats, err := ingest.IngestIsolated(batch, p.opts.Ingest)
			outcomes[i] = outcome{model: m, stats: stats, err: err}
			if err != nil && p.opts.StrictBatches {
				return fmt.Errorf("%w: batch %d: %w", domain.ErrBatchFailed, i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	res.Model = model.New()
	var errs []error
	for i, o := range outcomes {
		if o.err != nil {
			res.FailedBatches++
			errs = append(errs, fmt.Errorf("%w: batch %d: %w", domain.ErrBatchFailed, i, o.err))
			p.logger.Warn("batch rejected", "run_id", res.RunID, "batch", i, "error", o.err)
			continue
		}
		model.Merge(res.Model, o.model)
		res.Stats.Add(o.stats)
	}
	res.BatchErrors = errors.Join(errs...)
	if res.FailedBatches == len(batches) {
		return res.BatchErrors
	}
	return nil
}

func (p *Pipeline) validate(ctx context.Context, res *Result) error {
	failFast := p.opts.ValidationMode == domain.ValidationFailFast

	found := res.Model.Validate(p.opts.ValidationMode)
	res.ModelFindings = len(found)
	res.Findings = append(res.Findings, found...)

	arch, err := architecture.Build(res.Model)
	if err != nil {
		return err
	}
	res.Architecture = arch
	if failFast && len(res.Findings) > 0 {
		return nil
	}

	cycles := arch.Validate(p.opts.CycleMode)
	if failFast && len(cycles) > 1 {
		cycles = cycles[:1]
	}
	res.CycleFindings = len(cycles)
	res.Findings = append(res.Findings, cycles...)
	if failFast && len(res.Findings) > 0 {
		return nil
	}

	violations, err := p.chain.Check(ctx, res.Model, p.opts.ValidationMode)
	if err != nil {
		return err
	}
	res.PolicyViolations = len(violations)
	res.Enforced = p.opts.EnforcePolicy
	res.Findings = append(res.Findings, violations...)
	return nil
}
