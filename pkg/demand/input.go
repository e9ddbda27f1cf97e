package demand

import (
	"sort"
	"time"

	"github.com/polisai/archextract/pkg/model"
)

const (
	// DefaultCPUUtilization is assumed for hosts without measurements.
	DefaultCPUUtilization = 0.5
	// DefaultGranularity spaces the default utilization samples.
	DefaultGranularity = 10 * time.Millisecond
)

// Config tunes input construction. A zero Granularity selects
// DefaultGranularity; anything finer than a microsecond is sampled every
// microsecond since timestamps carry no more resolution.
type Config struct {
	CPUUtilization float64
	Granularity    time.Duration
}

// DefaultConfig returns the default utilization assumptions.
func DefaultConfig() Config {
	return Config{CPUUtilization: DefaultCPUUtilization, Granularity: DefaultGranularity}
}

// UtilizationSample is one CPU utilization reading. Timestamp is
// microseconds.
type UtilizationSample struct {
	Timestamp   int64
	Utilization float64
}

// Host is one service instance with its observation window.
type Host struct {
	ID      int
	Name    string
	Service string
	// Start and End bound every response sample seen on the host.
	Start int64
	End   int64
	CPU   []UtilizationSample
}

// OperationOnHost is the response time series of one operation on one host.
type OperationOnHost struct {
	ID        int
	Service   string
	Operation string
	Host      string
	Samples   []model.ResponseSample
}

// Key identifies an operation on a host.
func (o OperationOnHost) Key() Key {
	return Key{Service: o.Service, Operation: o.Operation, Host: o.Host}
}

// Key addresses one operation/host pair.
type Key struct {
	Service   string
	Operation string
	Host      string
}

// Input is what an Estimator consumes.
type Input struct {
	Hosts      []*Host
	Operations []*OperationOnHost
}

// BuildInput collects the estimator input from m. Hosts and operations are
// numbered densely in service, host and operation name order.
func BuildInput(m *model.Model, cfg Config) Input {
	if cfg.Granularity <= 0 {
		cfg.Granularity = DefaultGranularity
	}

	var in Input
	hosts := make(map[Key]*Host)
	for _, svc := range m.SortedServices() {
		names := append([]string(nil), svc.Hosts...)
		sort.Strings(names)
		for _, name := range names {
			h := &Host{ID: len(in.Hosts), Name: name, Service: svc.Name, Start: -1, End: -1}
			hosts[Key{Service: svc.Name, Host: name}] = h
			in.Hosts = append(in.Hosts, h)
		}

		for _, op := range svc.SortedOperations() {
			for _, hostName := range op.Hosts() {
				h := hosts[Key{Service: svc.Name, Host: hostName}]
				if h == nil {
					continue
				}
				samples := append([]model.ResponseSample(nil), op.ResponseTimes[hostName]...)
				sort.SliceStable(samples, func(i, j int) bool { return samples[i].Timestamp < samples[j].Timestamp })
				for _, s := range samples {
					if h.Start < 0 || s.Timestamp < h.Start {
						h.Start = s.Timestamp
					}
					end := s.Timestamp + int64(s.ResponseTime)
					if end > h.End {
						h.End = end
					}
				}
				in.Operations = append(in.Operations, &OperationOnHost{
					ID:        len(in.Operations),
					Service:   svc.Name,
					Operation: op.Name,
					Host:      hostName,
					Samples:   samples,
				})
			}
		}
	}

	step := cfg.Granularity.Microseconds()
	if step < 1 {
		step = 1
	}
	for _, h := range in.Hosts {
		if h.Start < 0 {
			h.Start, h.End = 0, 0
			continue
		}
		for ts := h.Start; ts <= h.End; ts += step {
			h.CPU = append(h.CPU, UtilizationSample{Timestamp: ts, Utilization: cfg.CPUUtilization})
		}
	}
	return in
}
