package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/archextract/internal/governance"
	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/model"
)

func retryingModel() *model.Model {
	m := model.New()
	front := m.EnsureService("frontend")
	front.AddHost("fe-1")
	op := front.EnsureOperation("checkout")
	op.Retry.Sequences = []model.RetrySequence{{CallerSpan: "t/1", Callee: "cart/add"}}

	cart := m.EnsureService("cart")
	cart.EnsureOperation("add")
	return m
}

func TestDefaultRules(t *testing.T) {
	engine, err := NewEngine(context.Background(), EngineOptions{})
	require.NoError(t, err)

	found, err := engine.Check(context.Background(), retryingModel())
	require.NoError(t, err)
	require.Len(t, found, 2)

	assert.Equal(t, "cart", found[0].Service)
	assert.Contains(t, found[0].Message, "service-without-instances")
	assert.Equal(t, "frontend", found[1].Service)
	assert.Equal(t, "checkout", found[1].Operation)
	assert.Contains(t, found[1].Message, "retries without a circuit breaker")
	for i := range found {
		assert.ErrorIs(t, &found[i], domain.ErrPolicyViolation)
	}
}

func TestDefaultRulesSatisfied(t *testing.T) {
	m := retryingModel()
	cb := governance.DefaultCircuitBreaker()
	m.Operation("frontend", "checkout").CircuitBreaker = &cb
	m.Service("cart").AddHost("cart-1")

	engine, err := NewEngine(context.Background(), EngineOptions{})
	require.NoError(t, err)
	found, err := engine.Check(context.Background(), m)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestCustomModule(t *testing.T) {
	src := `package custom

violations contains msg if {
	some name, svc in input.services
	svc.capacity < 500
	msg := sprintf("%s is under-provisioned", [name])
}
`
	engine, err := NewEngine(context.Background(), EngineOptions{
		Entrypoint: "custom/violations",
		Modules:    map[string]string{"custom.rego": src},
	})
	require.NoError(t, err)

	m := model.New()
	m.EnsureService("small").Capacity = 100
	m.EnsureService("big")

	found, err := engine.Check(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "small is under-provisioned", found[0].Message)
}

func TestNewEngineRejectsBrokenModules(t *testing.T) {
	_, err := NewEngine(context.Background(), EngineOptions{Modules: map[string]string{"bad.rego": "package x\nviolations contains"}})
	assert.Error(t, err)
}

func TestResultsAreCached(t *testing.T) {
	engine, err := NewEngine(context.Background(), EngineOptions{CacheMaxEntries: 1})
	require.NoError(t, err)
	m := retryingModel()

	first, err := engine.Check(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.cache.Len())

	second, err := engine.Check(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	m.Service("cart").AddHost("cart-1")
	third, err := engine.Check(context.Background(), m)
	require.NoError(t, err)
	assert.Len(t, third, 1, "a changed model is evaluated again")
	assert.Equal(t, 1, engine.cache.Len(), "cache is bounded")
}

func TestChainPostures(t *testing.T) {
	boom := CheckerFunc(func(context.Context, *model.Model) ([]domain.ValidationError, error) {
		return nil, errors.New("boom")
	})
	finding := CheckerFunc(func(context.Context, *model.Model) ([]domain.ValidationError, error) {
		return []domain.ValidationError{
			{Kind: domain.ErrPolicyViolation, Message: "one"},
			{Kind: domain.ErrPolicyViolation, Message: "two"},
		}, nil
	})

	_, err := NewChain(ModeFailClosed, nil, boom, finding).Check(context.Background(), model.New(), domain.ValidationCollectAll)
	assert.ErrorContains(t, err, "boom")

	found, err := NewChain(ModeFailOpen, nil, boom, finding).Check(context.Background(), model.New(), domain.ValidationCollectAll)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = NewChain(ModeFailOpen, nil, finding, finding).Check(context.Background(), model.New(), domain.ValidationFailFast)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode(" Fail-Open ")
	require.NoError(t, err)
	assert.Equal(t, ModeFailOpen, mode)

	_, err = ParseMode("")
	assert.Error(t, err)
	_, err = ParseMode("sometimes")
	assert.Error(t, err)
}
