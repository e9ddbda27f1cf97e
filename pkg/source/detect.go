package source

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/polisai/archextract/pkg/domain"
)

// Detect guesses the trace format of a JSON payload from its top-level shape.
//
//	{"data": [...]}              jaeger
//	{"resourceSpans": [...]}     otlp
//	{"rootOfTrace": {...}}       openxtrace (single trace)
//	[{"rootOfTrace": ...}, ...]  openxtrace
//	[{"traceId": ...}, ...]      zipkin
//	[[{"traceId": ...}], ...]    zipkin (one list per trace)
func Detect(data []byte) (domain.Format, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", domain.ErrEmptyBatch
	}

	switch data[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrUnsupportedFormat, err)
		}
		return detectObject(obj)
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrUnsupportedFormat, err)
		}
		if len(arr) == 0 {
			return "", domain.ErrEmptyBatch
		}
		first := bytes.TrimSpace(arr[0])
		if len(first) > 0 && first[0] == '[' {
			return domain.FormatZipkin, nil
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(first, &obj); err != nil {
			return "", fmt.Errorf("%w: %w", domain.ErrUnsupportedFormat, err)
		}
		if _, ok := obj["rootOfTrace"]; ok {
			return domain.FormatOpenXTrace, nil
		}
		if _, ok := obj["traceId"]; ok {
			return domain.FormatZipkin, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognised payload", domain.ErrUnsupportedFormat)
}

func detectObject(obj map[string]json.RawMessage) (domain.Format, error) {
	switch {
	case has(obj, "data"):
		return domain.FormatJaeger, nil
	case has(obj, "resourceSpans", "resource_spans"):
		return domain.FormatOTLP, nil
	case has(obj, "rootOfTrace"):
		return domain.FormatOpenXTrace, nil
	}
	return "", fmt.Errorf("%w: unrecognised object", domain.ErrUnsupportedFormat)
}

func has(obj map[string]json.RawMessage, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}
