package ingest

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/polisai/archextract/pkg/domain"
)

const (
	DefaultCircuitBreakerTag = "pattern.circuitBreaker"
	DefaultLoadBalancerTag   = "pattern.loadBalancer"
)

// DefaultHostTags are the Jaeger process tags consulted, in order, for an
// instance identifier.
var DefaultHostTags = []string{"hostname", "ip", "host.name"}

// Options controls how spans are mapped onto the model.
type Options struct {
	// IgnorePattern is a regular expression matched against the whole
	// operation name. Matching spans are synthetic hops: they never become
	// operations and their children are attributed to the nearest
	// non-matching ancestor.
	IgnorePattern     string
	CircuitBreakerTag string
	LoadBalancerTag   string
	HostTags          []string
	Logger            *slog.Logger
}

// DefaultOptions returns options with the conventional tag names.
func DefaultOptions() Options {
	return Options{
		CircuitBreakerTag: DefaultCircuitBreakerTag,
		LoadBalancerTag:   DefaultLoadBalancerTag,
		HostTags:          append([]string(nil), DefaultHostTags...),
	}
}

type compiled struct {
	Options
	ignore *regexp.Regexp
}

func (o Options) compile() (compiled, error) {
	c := compiled{Options: o}
	if c.CircuitBreakerTag == "" {
		c.CircuitBreakerTag = DefaultCircuitBreakerTag
	}
	if c.LoadBalancerTag == "" {
		c.LoadBalancerTag = DefaultLoadBalancerTag
	}
	if len(c.HostTags) == 0 {
		c.HostTags = DefaultHostTags
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if o.IgnorePattern != "" {
		re, err := regexp.Compile("^(?:" + o.IgnorePattern + ")$")
		if err != nil {
			return c, fmt.Errorf("%w: ignore pattern: %v", domain.ErrConfigInvalid, err)
		}
		c.ignore = re
	}
	return c, nil
}

func (c compiled) ignored(operation string) bool {
	return c.ignore != nil && c.ignore.MatchString(operation)
}
