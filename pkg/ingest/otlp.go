package ingest

import (
	"encoding/hex"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/model"
)

var otlpHostKeys = []string{"host.name", "service.instance.id", "net.host.name", "host.id"}

func flattenOTLP(b OTLPBatch, _ compiled) (*flatBatch, error) {
	fb := &flatBatch{format: domain.FormatOTLP}
	for _, rs := range b.ResourceSpans {
		resource := attributes(rs.GetResource().GetAttributes())
		service, _ := resource["service.name"].(string)

		resourceHost := firstString(resource, otlpHostKeys)
		if service != "" {
			tags := make(map[string]string, len(resource))
			for k, v := range resource {
				if str, ok := v.(string); ok {
					tags[k] = str
				}
			}
			tags["serviceName"] = service
			fb.endpoints = append(fb.endpoints, endpoint{service: service, host: resourceHost, tags: tags})
		}

		for _, ss := range rs.GetScopeSpans() {
			for _, ps := range ss.GetSpans() {
				traceID := hex.EncodeToString(ps.GetTraceId())
				spanID := hex.EncodeToString(ps.GetSpanId())
				if service == "" {
					return nil, &domain.StructuralError{
						Format:    domain.FormatOTLP,
						TraceID:   traceID,
						SpanID:    spanID,
						Operation: ps.GetName(),
						Ref:       "resource.service.name",
						Err:       domain.ErrMissingField,
					}
				}
				if len(ps.GetSpanId()) == 0 || ps.GetName() == "" {
					return nil, &domain.StructuralError{
						Format:    domain.FormatOTLP,
						TraceID:   traceID,
						SpanID:    spanID,
						Service:   service,
						Operation: ps.GetName(),
						Err:       domain.ErrMissingField,
					}
				}
				fb.spans = append(fb.spans, otlpSpan(ps, traceID, spanID, service, resourceHost))
			}
		}
	}
	return fb, nil
}

func otlpSpan(ps *tracepb.Span, traceID, spanID, service, host string) *span {
	tags := attributes(ps.GetAttributes())
	if h := firstString(tags, otlpHostKeys); h != "" {
		host = h
	}
	start := ps.GetStartTimeUnixNano()
	var duration float64
	if end := ps.GetEndTimeUnixNano(); end > start {
		duration = float64(end-start) / 1000
	}

	s := &span{
		traceID:   traceID,
		id:        spanID,
		service:   service,
		operation: ps.GetName(),
		host:      host,
		start:     int64(start / 1000),
		duration:  duration,
		tags:      tags,
	}
	if len(ps.GetParentSpanId()) > 0 {
		s.parentID = hex.EncodeToString(ps.GetParentSpanId())
	}
	for _, ev := range ps.GetEvents() {
		fields := attributes(ev.GetAttributes())
		if fields == nil {
			fields = make(map[string]any, 1)
		}
		fields["event"] = ev.GetName()
		s.logs = append(s.logs, model.LogEntry{Timestamp: int64(ev.GetTimeUnixNano() / 1000), Fields: fields})
	}

	s.failed, s.code = failure(tags)
	if ps.GetStatus().GetCode() == tracepb.Status_STATUS_CODE_ERROR && !s.failed {
		s.failed = true
		s.code = ps.GetStatus().GetMessage()
		if s.code == "" {
			s.code = "error"
		}
	}
	return s
}

func attributes(kvs []*commonpb.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		if kv.GetValue() == nil {
			continue
		}
		out[kv.GetKey()] = anyValue(kv.GetValue())
	}
	return out
}

func anyValue(v *commonpb.AnyValue) any {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return val.BoolValue
	case *commonpb.AnyValue_IntValue:
		return val.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return val.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return hex.EncodeToString(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue:
		items := make([]any, 0, len(val.ArrayValue.GetValues()))
		for _, item := range val.ArrayValue.GetValues() {
			items = append(items, anyValue(item))
		}
		return items
	case *commonpb.AnyValue_KvlistValue:
		return attributes(val.KvlistValue.GetValues())
	default:
		return nil
	}
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
