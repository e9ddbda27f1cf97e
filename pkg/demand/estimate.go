package demand

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/model"
)

// Estimator turns an Input into an estimated utilization per operation/host
// pair. Implementations may call out to external tools.
type Estimator interface {
	Estimate(ctx context.Context, in Input) (map[Key]float64, error)
}

// BusyTimeEstimator splits each host's mean CPU utilization across the
// operations it served in proportion to their summed response times.
type BusyTimeEstimator struct{}

// Estimate implements Estimator.
func (BusyTimeEstimator) Estimate(ctx context.Context, in Input) (map[Key]float64, error) {
	busy := make(map[Key]float64)
	for _, o := range in.Operations {
		for _, s := range o.Samples {
			busy[Key{Service: o.Service, Host: o.Host}] += s.ResponseTime
		}
	}

	out := make(map[Key]float64, len(in.Operations))
	for _, h := range in.Hosts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		util := meanUtilization(h.CPU)
		total := busy[Key{Service: h.Service, Host: h.Name}]
		for _, o := range in.Operations {
			if o.Service != h.Service || o.Host != h.Name {
				continue
			}
			var own float64
			for _, s := range o.Samples {
				own += s.ResponseTime
			}
			if total > 0 {
				out[o.Key()] = util * own / total
			}
		}
	}
	return out, nil
}

func meanUtilization(samples []UtilizationSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.Utilization
	}
	return sum / float64(len(samples))
}

// Apply sets each operation's demand to the mean estimated utilization over
// its hosts times the service capacity. Operations without estimates keep
// their demand. It returns the number of operations updated.
func Apply(m *model.Model, estimates map[Key]float64) int {
	updated := 0
	m.EachOperation(func(svc *model.Service, op *model.Operation) {
		var sum float64
		n := 0
		for _, host := range op.Hosts() {
			if u, ok := estimates[Key{Service: svc.Name, Operation: op.Name, Host: host}]; ok {
				sum += u
				n++
			}
		}
		if n == 0 {
			return
		}
		op.Demand = sum / float64(n) * svc.Capacity
		updated++
	})
	return updated
}

// Run builds the input, estimates and applies the result.
func Run(ctx context.Context, m *model.Model, est Estimator, cfg Config, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	in := BuildInput(m, cfg)
	if len(in.Operations) == 0 {
		return 0, domain.ErrNoOperationSamples
	}
	estimates, err := est.Estimate(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrEstimationFailed, err)
	}
	n := Apply(m, estimates)
	logger.Debug("resource demand applied",
		"hosts", len(in.Hosts),
		"series", len(in.Operations),
		"operations", n,
	)
	return n, nil
}
