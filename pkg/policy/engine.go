package policy

import (
	"container/list"
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"sync"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/model"
)

//go:embed rules/*.rego
var builtinRules embed.FS

// DefaultModules returns the embedded rule set keyed by file name.
func DefaultModules() map[string]string {
	out := make(map[string]string)
	entries, _ := fs.ReadDir(builtinRules, "rules")
	for _, e := range entries {
		src, err := fs.ReadFile(builtinRules, "rules/"+e.Name())
		if err == nil {
			out[e.Name()] = string(src)
		}
	}
	return out
}

// EngineOptions control OPA engine construction.
type EngineOptions struct {
	// Entrypoint is the rule path producing violations
	// (e.g. "archextract/violations").
	Entrypoint string
	// Modules contains the Rego modules to load. Empty selects
	// DefaultModules.
	Modules map[string]string
	// CacheMaxEntries bounds the result cache size (LRU). Zero selects the
	// default size; negative disables caching entirely.
	CacheMaxEntries int
	Logger          *slog.Logger
}

// Engine evaluates Rego rules over model snapshots.
type Engine struct {
	moduleOrder   []string
	parsedModules map[string]*ast.Module
	entrypoint    string
	cache         *resultCache
	logger        *slog.Logger
	queries       map[string]*rego.PreparedEvalQuery
	mu            sync.RWMutex
}

const (
	DefaultEntrypoint    = "archextract/violations"
	defaultCacheCapacity = 64
)

// NewEngine parses the modules and prepares the entrypoint query.
func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = DefaultEntrypoint
	}
	modules := opts.Modules
	if len(modules) == 0 {
		modules = DefaultModules()
	}
	if len(modules) == 0 {
		return nil, errors.New("policy engine requires at least one rego module")
	}

	maxEntries := opts.CacheMaxEntries
	switch {
	case maxEntries == 0:
		maxEntries = defaultCacheCapacity
	case maxEntries < 0:
		maxEntries = 0
	}
	var cache *resultCache
	if maxEntries > 0 {
		cache = newResultCache(maxEntries)
	}

	moduleOrder := make([]string, 0, len(modules))
	for name := range modules {
		moduleOrder = append(moduleOrder, name)
	}
	sort.Strings(moduleOrder)

	parsed := make(map[string]*ast.Module, len(modules))
	for _, name := range moduleOrder {
		module, err := ast.ParseModuleWithOpts(name, modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		parsed[name] = module
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		moduleOrder:   moduleOrder,
		parsedModules: parsed,
		entrypoint:    entry,
		cache:         cache,
		logger:        logger,
		queries:       make(map[string]*rego.PreparedEvalQuery),
	}

	// Warm the entrypoint to surface compile errors early.
	if _, err := engine.preparedQuery(ctx, entry); err != nil {
		return nil, fmt.Errorf("compile rego modules: %w", err)
	}
	return engine, nil
}

// Check evaluates the rules against m and returns one finding of kind
// domain.ErrPolicyViolation per violation, sorted by service, operation and
// message.
func (e *Engine) Check(ctx context.Context, m *model.Model) ([]domain.ValidationError, error) {
	input := Snapshot(m)

	key, cacheable := e.cacheKey(input)
	if cacheable {
		if cached, ok := e.cache.Get(key); ok {
			return append([]domain.ValidationError(nil), cached...), nil
		}
	}

	prepared, err := e.preparedQuery(ctx, e.entrypoint)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare query: %v", domain.ErrPolicyEvalFailed, err)
	}

	results, err := prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPolicyEvalFailed, err)
	}

	var violations []domain.ValidationError
	if len(results) > 0 && len(results[0].Expressions) > 0 {
		violations, err = parseViolations(results[0].Expressions[0].Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrPolicyEvalFailed, err)
		}
	}
	e.logger.Debug("policy evaluated",
		"entrypoint", e.entrypoint,
		"modules", len(e.moduleOrder),
		"violations", len(violations),
	)

	if cacheable {
		e.cache.Add(key, append([]domain.ValidationError(nil), violations...))
	}
	return violations, nil
}

func (e *Engine) preparedQuery(ctx context.Context, entry string) (*rego.PreparedEvalQuery, error) {
	e.mu.RLock()
	if prepared, ok := e.queries[entry]; ok {
		e.mu.RUnlock()
		return prepared, nil
	}
	e.mu.RUnlock()

	query := "data." + strings.ReplaceAll(entry, "/", ".")

	opts := make([]func(*rego.Rego), 0, len(e.parsedModules)+1)
	opts = append(opts, rego.Query(query))
	for _, name := range e.moduleOrder {
		opts = append(opts, rego.ParsedModule(e.parsedModules[name]))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Another goroutine may have already prepared the query; respect first entry.
	if existing, ok := e.queries[entry]; ok {
		return existing, nil
	}
	e.queries[entry] = &prepared
	return &prepared, nil
}

// cacheKey hashes the entrypoint and the canonical JSON of the snapshot.
func (e *Engine) cacheKey(input map[string]any) (string, bool) {
	if e.cache == nil {
		return "", false
	}
	doc, err := json.Marshal(input)
	if err != nil {
		return "", false
	}
	h := sha256.New()
	h.Write([]byte(e.entrypoint))
	h.Write([]byte{0})
	h.Write(doc)
	return hex.EncodeToString(h.Sum(nil)), true
}

func parseViolations(value any) ([]domain.ValidationError, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("violations must be a set, got %T", value)
	}
	out := make([]domain.ValidationError, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, domain.ValidationError{Kind: domain.ErrPolicyViolation, Message: v})
		case map[string]any:
			msg := stringField(v, "message")
			if rule := stringField(v, "rule"); rule != "" {
				msg = rule + ": " + msg
			}
			out = append(out, domain.ValidationError{
				Kind:            domain.ErrPolicyViolation,
				Service:         stringField(v, "service"),
				Operation:       stringField(v, "operation"),
				TargetService:   stringField(v, "target_service"),
				TargetOperation: stringField(v, "target_operation"),
				Message:         msg,
			})
		default:
			return nil, fmt.Errorf("violation must be an object or string, got %T", item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		if a.Operation != b.Operation {
			return a.Operation < b.Operation
		}
		return a.Message < b.Message
	})
	return out, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

type resultCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
}

type cacheItem struct {
	key   string
	value []domain.ValidationError
}

func newResultCache(capacity int) *resultCache {
	return &resultCache{
		max:     capacity,
		order:   list.New(),
		entries: make(map[string]*list.Element, capacity),
	}
}

func (c *resultCache) Get(key string) ([]domain.ValidationError, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(cacheItem).value, true
}

func (c *resultCache) Add(key string, value []domain.ValidationError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value = cacheItem{key: key, value: value}
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(cacheItem{key: key, value: value})
	if c.order.Len() <= c.max {
		return
	}
	if tail := c.order.Back(); tail != nil {
		c.order.Remove(tail)
		delete(c.entries, tail.Value.(cacheItem).key)
	}
}

func (c *resultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
