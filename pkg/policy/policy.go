package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/model"
)

// Checker produces validation findings for a model.
type Checker interface {
	Check(ctx context.Context, m *model.Model) ([]domain.ValidationError, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, m *model.Model) ([]domain.ValidationError, error)

func (f CheckerFunc) Check(ctx context.Context, m *model.Model) ([]domain.ValidationError, error) {
	return f(ctx, m)
}

// Chain runs checkers in order and concatenates their findings.
type Chain struct {
	checkers []Checker
	posture  Mode
	logger   *slog.Logger
}

// NewChain constructs a checker chain. An invalid posture falls back to
// fail-closed.
func NewChain(posture Mode, logger *slog.Logger, checkers ...Checker) Chain {
	if !posture.IsValid() {
		posture = ModeFailClosed
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Chain{checkers: append([]Checker(nil), checkers...), posture: posture, logger: logger}
}

// Check runs the chain. With domain.ValidationFailFast it stops after the
// first checker that reports a finding and returns only that finding.
func (c Chain) Check(ctx context.Context, m *model.Model, mode domain.ValidationMode) ([]domain.ValidationError, error) {
	var out []domain.ValidationError
	for i, checker := range c.checkers {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		found, err := checker.Check(ctx, m)
		if err != nil {
			if c.posture == ModeFailOpen {
				c.logger.Warn("policy checker failed; continuing", "checker", i, "error", err)
				continue
			}
			return out, fmt.Errorf("checker %d: %w", i, err)
		}
		if mode == domain.ValidationFailFast && len(found) > 0 {
			return found[:1], nil
		}
		out = append(out, found...)
	}
	return out, nil
}
