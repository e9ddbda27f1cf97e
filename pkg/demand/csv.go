package demand

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IndexFile lists every operation/host series written by WriteCSV.
const IndexFile = "operations.csv"

// CPUFileName is the utilization file of a host.
func CPUFileName(h *Host) string {
	return sanitize(h.Name) + "_cpu_utilization.csv"
}

// ResponseTimeFileName is the response time file of an operation/host pair.
func ResponseTimeFileName(o *OperationOnHost) string {
	return "operation" + strconv.Itoa(o.ID) + "_response_times.csv"
}

// WriteCSV writes one "timestamp,value" file per host and per operation/host
// pair into dir, plus an index mapping file names to operations.
func WriteCSV(dir string, in Input) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create demand input dir: %w", err)
	}
	var written []string

	for _, h := range in.Hosts {
		rows := make([][]string, 0, len(h.CPU))
		for _, s := range h.CPU {
			rows = append(rows, []string{strconv.FormatInt(s.Timestamp, 10), formatFloat(s.Utilization)})
		}
		path := filepath.Join(dir, CPUFileName(h))
		if err := writeRows(path, rows); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	index := [][]string{{"file", "service", "operation", "host"}}
	for _, o := range in.Operations {
		rows := make([][]string, 0, len(o.Samples))
		for _, s := range o.Samples {
			rows = append(rows, []string{strconv.FormatInt(s.Timestamp, 10), formatFloat(s.ResponseTime)})
		}
		name := ResponseTimeFileName(o)
		path := filepath.Join(dir, name)
		if err := writeRows(path, rows); err != nil {
			return written, err
		}
		written = append(written, path)
		index = append(index, []string{name, o.Service, o.Operation, o.Host})
	}

	path := filepath.Join(dir, IndexFile)
	if err := writeRows(path, index); err != nil {
		return written, err
	}
	return append(written, path), nil
}

func writeRows(path string, rows [][]string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func sanitize(name string) string {
	return strings.NewReplacer(":", "_", "/", "_", "\\", "_", " ", "_").Replace(name)
}
