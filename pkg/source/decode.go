package source

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/ingest"
)

// Decode parses data as the given format. An empty format is detected.
func Decode(data []byte, format domain.Format) (ingest.Batch, error) {
	if format == "" {
		detected, err := Detect(data)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	switch format {
	case domain.FormatJaeger:
		var b ingest.JaegerBatch
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decode jaeger: %w", err)
		}
		return b, nil
	case domain.FormatZipkin:
		return decodeZipkin(data)
	case domain.FormatOpenXTrace:
		return decodeOpenXTrace(data)
	case domain.FormatOTLP:
		return decodeOTLPJSON(data)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
}

// DecodeOTLPProto parses a binary OTLP TracesData message.
func DecodeOTLPProto(data []byte) (ingest.Batch, error) {
	var td tracepb.TracesData
	if err := proto.Unmarshal(data, &td); err != nil {
		return nil, fmt.Errorf("decode otlp protobuf: %w", err)
	}
	return ingest.OTLPBatch{ResourceSpans: td.GetResourceSpans()}, nil
}

func decodeZipkin(data []byte) (ingest.Batch, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode zipkin: %w", err)
	}
	var b ingest.ZipkinBatch
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '[' {
			var spans []ingest.ZipkinSpan
			if err := json.Unmarshal(item, &spans); err != nil {
				return nil, fmt.Errorf("decode zipkin trace %d: %w", i, err)
			}
			b.Spans = append(b.Spans, spans...)
			continue
		}
		var span ingest.ZipkinSpan
		if err := json.Unmarshal(item, &span); err != nil {
			return nil, fmt.Errorf("decode zipkin span %d: %w", i, err)
		}
		b.Spans = append(b.Spans, span)
	}
	return b, nil
}

func decodeOpenXTrace(data []byte) (ingest.Batch, error) {
	data = bytes.TrimSpace(data)
	var b ingest.OpenXTraceBatch
	if len(data) > 0 && data[0] == '{' {
		var tr ingest.XTrace
		if err := json.Unmarshal(data, &tr); err != nil {
			return nil, fmt.Errorf("decode openxtrace: %w", err)
		}
		b.Traces = []ingest.XTrace{tr}
		return b, nil
	}
	if err := json.Unmarshal(data, &b.Traces); err != nil {
		return nil, fmt.Errorf("decode openxtrace: %w", err)
	}
	return b, nil
}

// OTLP/JSON encodes ids as hex while protojson expects base64 for bytes
// fields, so ids are rewritten before unmarshalling.
func decodeOTLPJSON(data []byte) (ingest.Batch, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode otlp: %w", err)
	}
	rewriteIDs(doc)
	fixed, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("decode otlp: %w", err)
	}

	var td tracepb.TracesData
	if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(fixed, &td); err != nil {
		return nil, fmt.Errorf("decode otlp: %w", err)
	}
	return ingest.OTLPBatch{ResourceSpans: td.GetResourceSpans()}, nil
}

var idFields = map[string]int{
	"traceId":        16,
	"trace_id":       16,
	"spanId":         8,
	"span_id":        8,
	"parentSpanId":   8,
	"parent_span_id": 8,
}

func rewriteIDs(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if size, ok := idFields[k]; ok {
				if s, ok := val.(string); ok {
					t[k] = hexToBase64(s, size)
				}
				continue
			}
			rewriteIDs(val)
		}
	case []any:
		for _, item := range t {
			rewriteIDs(item)
		}
	}
}

// hexToBase64 leaves values that are not hex ids of the expected size alone.
func hexToBase64(s string, size int) string {
	if len(s) != size*2 {
		return s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return s
	}
	return base64.StdEncoding.EncodeToString(raw)
}
