package ingest

import (
	"fmt"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/model"
)

func flattenZipkin(b ZipkinBatch, _ compiled) (*flatBatch, error) {
	fb := &flatBatch{format: domain.FormatZipkin}
	for _, zs := range b.Spans {
		if zs.LocalEndpoint == nil || zs.LocalEndpoint.ServiceName == "" {
			return nil, &domain.StructuralError{
				Format:    domain.FormatZipkin,
				TraceID:   zs.TraceID,
				SpanID:    zs.ID,
				Operation: zs.Name,
				Ref:       "localEndpoint.serviceName",
				Err:       domain.ErrMissingField,
			}
		}
		if zs.ID == "" || zs.Name == "" {
			return nil, &domain.StructuralError{
				Format:    domain.FormatZipkin,
				TraceID:   zs.TraceID,
				SpanID:    zs.ID,
				Service:   zs.LocalEndpoint.ServiceName,
				Operation: zs.Name,
				Err:       domain.ErrMissingField,
			}
		}

		local := zs.LocalEndpoint
		fb.endpoints = append(fb.endpoints, zipkinEndpoint(local, "local_endpoint_"))
		if remote := zs.RemoteEndpoint; remote != nil && *remote != (ZipkinEndpoint{}) {
			fb.endpoints = append(fb.endpoints, zipkinEndpoint(remote, "remote_endpoint_"))
		}

		s := &span{
			traceID:   zs.TraceID,
			id:        zs.ID,
			parentID:  zs.ParentID,
			service:   local.ServiceName,
			operation: zs.Name,
			host:      zipkinHost(local),
			start:     zs.Timestamp,
			duration:  float64(zs.Duration),
		}
		if len(zs.Tags) > 0 {
			s.tags = make(map[string]any, len(zs.Tags))
			for k, v := range zs.Tags {
				s.tags[k] = v
			}
		}
		for _, a := range zs.Annotations {
			s.logs = append(s.logs, model.LogEntry{Timestamp: a.Timestamp, Fields: map[string]any{"log": a.Value}})
		}
		s.failed, s.code = failure(s.tags)
		// Zipkin marks failures by the presence of the error tag, whatever
		// its value.
		if msg, ok := zs.Tags["error"]; ok && !s.failed {
			s.failed = true
			s.code = msg
			if s.code == "" {
				s.code = "error"
			}
		}
		fb.spans = append(fb.spans, s)
	}
	return fb, nil
}

func zipkinHost(ep *ZipkinEndpoint) string {
	ip := ep.IPv4
	if ip == "" {
		ip = ep.IPv6
	}
	if ip == "" && ep.Port == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", ip, ep.Port)
}

func zipkinEndpoint(ep *ZipkinEndpoint, fallbackPrefix string) endpoint {
	host := zipkinHost(ep)
	name := ep.ServiceName
	if name == "" {
		name = fallbackPrefix + host
	}
	tags := map[string]string{"serviceName": name}
	if ep.IPv4 != "" {
		tags["ipv4"] = ep.IPv4
	}
	if ep.IPv6 != "" {
		tags["ipv6"] = ep.IPv6
	}
	if ep.Port != 0 {
		tags["port"] = fmt.Sprint(ep.Port)
	}
	return endpoint{service: name, host: host, tags: tags}
}
