package ingest

import (
	"fmt"
	"sort"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/model"
)

func flattenJaeger(b JaegerBatch, opts compiled) (*flatBatch, error) {
	fb := &flatBatch{format: domain.FormatJaeger}
	for _, trace := range b.Data {
		pids := make([]string, 0, len(trace.Processes))
		for pid := range trace.Processes {
			pids = append(pids, pid)
		}
		sort.Strings(pids)

		hosts := make(map[string]string, len(pids))
		for _, pid := range pids {
			proc := trace.Processes[pid]
			tags := make(map[string]string, len(proc.Tags)+1)
			for _, kv := range proc.Tags {
				tags[kv.Key] = fmt.Sprint(kv.Value)
			}
			tags["serviceName"] = proc.ServiceName
			hosts[pid] = jaegerHost(pid, proc, opts.HostTags)
			fb.endpoints = append(fb.endpoints, endpoint{service: proc.ServiceName, host: hosts[pid], tags: tags})
		}

		for _, js := range trace.Spans {
			traceID := js.TraceID
			if traceID == "" {
				traceID = trace.TraceID
			}
			proc, ok := trace.Processes[js.ProcessID]
			if !ok {
				return nil, &domain.StructuralError{
					Format:    domain.FormatJaeger,
					TraceID:   traceID,
					SpanID:    js.SpanID,
					Operation: js.OperationName,
					Ref:       js.ProcessID,
					Err:       domain.ErrUnknownProcess,
				}
			}
			if js.SpanID == "" || js.OperationName == "" || proc.ServiceName == "" {
				return nil, &domain.StructuralError{
					Format:    domain.FormatJaeger,
					TraceID:   traceID,
					SpanID:    js.SpanID,
					Service:   proc.ServiceName,
					Operation: js.OperationName,
					Err:       domain.ErrMissingField,
				}
			}

			s := &span{
				traceID:   traceID,
				id:        js.SpanID,
				service:   proc.ServiceName,
				operation: js.OperationName,
				host:      hosts[js.ProcessID],
				start:     js.StartTime,
				duration:  float64(js.Duration),
				tags:      jaegerTags(js.Tags),
				logs:      jaegerLogs(js.Logs),
			}
			for _, ref := range js.References {
				if ref.RefType == "CHILD_OF" {
					s.parentID = ref.SpanID
					break
				}
			}
			s.failed, s.code = failure(s.tags)
			fb.spans = append(fb.spans, s)
		}
	}
	return fb, nil
}

func jaegerHost(pid string, proc JaegerProcess, keys []string) string {
	for _, key := range keys {
		for _, kv := range proc.Tags {
			if kv.Key == key && kv.Value != nil {
				return fmt.Sprint(kv.Value)
			}
		}
	}
	if len(proc.Tags) > 0 && proc.Tags[0].Value != nil {
		return fmt.Sprint(proc.Tags[0].Value)
	}
	return pid
}

func jaegerTags(kvs []JaegerKeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	tags := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		tags[kv.Key] = kv.Value
	}
	return tags
}

func jaegerLogs(logs []JaegerLog) []model.LogEntry {
	if len(logs) == 0 {
		return nil
	}
	out := make([]model.LogEntry, 0, len(logs))
	for _, l := range logs {
		out = append(out, model.LogEntry{Timestamp: l.Timestamp, Fields: jaegerTags(l.Fields)})
	}
	return out
}
