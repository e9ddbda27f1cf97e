package inference

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/polisai/archextract/pkg/model"
)

// Config tunes the inference pass. Start from DefaultConfig; a zero
// tolerance is honoured.
type Config struct {
	// LoadBalancerTolerance is the error share allowed in a round-robin
	// history.
	LoadBalancerTolerance float64
	// Parallelism bounds concurrently processed services. Zero uses
	// GOMAXPROCS.
	Parallelism int
	Logger      *slog.Logger
}

// DefaultConfig returns the default inference settings.
func DefaultConfig() Config {
	return Config{
		LoadBalancerTolerance: DefaultLoadBalancerTolerance,
	}
}

// Result counts what the pass derived.
type Result struct {
	Dependencies       int
	RetrySequences     int
	RetryOperations    int
	Verdicts           map[model.Verdict]int
	RoundRobinServices []string
}

type serviceResult struct {
	name         string
	dependencies int
	sequences    int
	retryOps     int
	verdict      model.Verdict
}

// Run executes the subsequent-calculations pass over a fully ingested model:
// dependency probabilities, retry detection and load balancer
// classification. Services are processed concurrently; each goroutine only
// touches its own service.
func Run(ctx context.Context, m *model.Model, cfg Config) (Result, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	services := m.SortedServices()
	results := make([]serviceResult, len(services))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, svc := range services {
		i, svc := i, svc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = inferService(svc, cfg.LoadBalancerTolerance)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{Verdicts: make(map[model.Verdict]int)}
	for _, r := range results {
		res.Dependencies += r.dependencies
		res.RetrySequences += r.sequences
		res.RetryOperations += r.retryOps
		res.Verdicts[r.verdict]++
		if r.verdict == model.VerdictRoundRobin {
			res.RoundRobinServices = append(res.RoundRobinServices, r.name)
		}
	}

	logger.Debug("inference pass complete",
		"services", len(services),
		"dependencies", res.Dependencies,
		"retry_sequences", res.RetrySequences,
		"round_robin_services", len(res.RoundRobinServices),
	)
	return res, nil
}

func inferService(svc *model.Service, tolerance float64) serviceResult {
	r := serviceResult{name: svc.Name}
	calculateServiceProbabilities(svc)
	for _, op := range svc.SortedOperations() {
		r.dependencies += len(op.Dependencies)
		DetectRetries(op.Retry)
		if n := len(op.Retry.Sequences); n > 0 {
			r.sequences += n
			r.retryOps++
		}
	}
	r.verdict = ClassifyLoadBalancer(svc.LoadBalancer, tolerance).Verdict
	return r
}
