package ingest

// jspan builds a Jaeger span; parent may be empty.
func jspan(id, parent, pid, op string, start, duration int64, tags ...JaegerKeyValue) JaegerSpan {
	s := JaegerSpan{
		TraceID:       "t1",
		SpanID:        id,
		OperationName: op,
		StartTime:     start,
		Duration:      duration,
		ProcessID:     pid,
		Tags:          tags,
	}
	if parent != "" {
		s.References = []JaegerReference{{RefType: "CHILD_OF", TraceID: "t1", SpanID: parent}}
	}
	return s
}

func kv(key string, value any) JaegerKeyValue {
	return JaegerKeyValue{Key: key, Value: value}
}

func process(service, host string) JaegerProcess {
	return JaegerProcess{ServiceName: service, Tags: []JaegerKeyValue{kv("hostname", host), kv("ip", "10.0.0.1")}}
}

// shopTrace is a frontend request that calls cart twice (the first call
// fails) and the catalog once.
func shopTrace() JaegerBatch {
	return JaegerBatch{Data: []JaegerTrace{{
		TraceID: "t1",
		Processes: map[string]JaegerProcess{
			"p1": process("frontend", "fe-1"),
			"p2": process("cart", "cart-1"),
			"p3": process("catalog", "cat-1"),
		},
		Spans: []JaegerSpan{
			jspan("s1", "", "p1", "GET /checkout", 1_000, 50_000),
			jspan("s2", "s1", "p2", "add", 2_000, 3_000, kv("http.status_code", int64(503))),
			jspan("s3", "s1", "p2", "add", 9_000, 2_000, kv("pattern.circuitBreaker", true)),
			jspan("s4", "s1", "p3", "list", 12_000, 1_000),
		},
	}}}
}
