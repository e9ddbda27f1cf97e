package telemetry

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/grpc"
)

type mockTraceCollector struct {
	collectortrace.UnimplementedTraceServiceServer

	mu            sync.Mutex
	resourceSpans []*tracepb.ResourceSpans
}

func startMockTraceCollector(t *testing.T) (*mockTraceCollector, string) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	collector := &mockTraceCollector{}
	server := grpc.NewServer()
	collectortrace.RegisterTraceServiceServer(server, collector)
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(func() {
		server.Stop()
		_ = lis.Close()
	})

	return collector, lis.Addr().String()
}

func (m *mockTraceCollector) Export(_ context.Context, req *collectortrace.ExportTraceServiceRequest) (*collectortrace.ExportTraceServiceResponse, error) {
	m.mu.Lock()
	m.resourceSpans = append(m.resourceSpans, req.ResourceSpans...)
	m.mu.Unlock()
	return &collectortrace.ExportTraceServiceResponse{}, nil
}

func (m *mockTraceCollector) snapshot() []*tracepb.ResourceSpans {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*tracepb.ResourceSpans(nil), m.resourceSpans...)
}

func TestSetupProviderWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupProvider(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupProviderExportsSpans(t *testing.T) {
	collector, addr := startMockTraceCollector(t)

	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx := context.Background()
	shutdown, err := SetupProvider(ctx, Config{
		ServiceName:  "archextract-test",
		Endpoint:     addr,
		Environment:  "test",
		Insecure:     true,
		ResourceTags: map[string]string{"team": "arch"},
		DialTimeout:  2 * time.Second,
	})
	require.NoError(t, err)

	_, span := Tracer().Start(ctx, "pipeline.run")
	span.End()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, shutdown(shutdownCtx))

	rs := collector.snapshot()
	require.NotEmpty(t, rs)

	attrs := map[string]string{}
	for _, kv := range rs[0].GetResource().GetAttributes() {
		attrs[kv.GetKey()] = kv.GetValue().GetStringValue()
	}
	assert.Equal(t, "archextract-test", attrs["service.name"])
	assert.Equal(t, "test", attrs["deployment.environment"])
	assert.Equal(t, "arch", attrs["team"])

	var names []string
	for _, ss := range rs[0].GetScopeSpans() {
		for _, s := range ss.GetSpans() {
			names = append(names, s.GetName())
		}
	}
	assert.Contains(t, names, "pipeline.run")
}
