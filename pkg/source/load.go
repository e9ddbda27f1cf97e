package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/ingest"
)

// File is one decoded input file.
type File struct {
	Path   string
	Format domain.Format
	Batch  ingest.Batch
}

// binaryExts are read as OTLP protobuf.
var binaryExts = map[string]bool{".pb": true, ".binpb": true, ".proto": true}

// ReadFile decodes one file. Binary protobuf files are recognised by
// extension; everything else is JSON.
func ReadFile(path string, format domain.Format) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	var b ingest.Batch
	if binaryExts[strings.ToLower(filepath.Ext(path))] {
		b, err = DecodeOTLPProto(data)
	} else {
		b, err = Decode(data, format)
	}
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return File{Path: path, Format: b.Format(), Batch: b}, nil
}

// Expand replaces directories in paths with the trace files directly inside
// them, in lexical order.
func Expand(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", p, err)
		}
		var names []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if e.IsDir() || (ext != ".json" && !binaryExts[ext]) {
				continue
			}
			names = append(names, filepath.Join(p, e.Name()))
		}
		sort.Strings(names)
		out = append(out, names...)
	}
	return out, nil
}

// Load expands and decodes paths concurrently. The result keeps input order
// so that later merges are deterministic.
func Load(ctx context.Context, paths []string, format domain.Format) ([]File, error) {
	expanded, err := Expand(paths)
	if err != nil {
		return nil, err
	}
	files := make([]File, len(expanded))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, p := range expanded {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := ReadFile(p, format)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// Batches returns the batches of files in order.
func Batches(files []File) []ingest.Batch {
	out := make([]ingest.Batch, len(files))
	for i, f := range files {
		out[i] = f.Batch
	}
	return out
}
