// Package storage keeps finalized extraction runs so that later commands and
// the metrics endpoint can read the latest model.
package storage

import (
	"context"
	"time"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/hazard"
	"github.com/polisai/archextract/pkg/model"
)

// ErrNotFound is returned when a requested run does not exist in the store.
var ErrNotFound = domain.ErrModelNotFound

// Run is one finalized extraction.
type Run struct {
	ID        string
	CreatedAt time.Time
	Sources   []string
	Model     *model.Model
	Hazards   hazard.Report
	Findings  []domain.ValidationError
	// Export is the serialized architecture, if one was produced.
	Export []byte
}

// Summary describes a stored run without its payload.
type Summary struct {
	ID        string
	CreatedAt time.Time
	Stats     model.Stats
	Findings  int
	Hazards   int
}

// ModelStore exposes persistence operations for extraction runs.
type ModelStore interface {
	// Save stores run, assigning an id when it has none, and returns the id.
	Save(ctx context.Context, run *Run) (string, error)
	Get(ctx context.Context, id string) (*Run, error)
	Latest(ctx context.Context) (*Run, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
