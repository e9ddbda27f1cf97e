package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/archextract/pkg/domain"
	"github.com/polisai/archextract/pkg/model"
)

func newRun() *Run {
	m := model.New()
	m.EnsureService("cart").EnsureOperation("add")
	return &Run{Model: m}
}

func TestMemoryModelStoreSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryModelStore(0)
	defer s.Close()

	run := newRun()
	id, err := s.Save(ctx, run)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "generated ids are uuids")
	assert.False(t, run.CreatedAt.IsZero())

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Same(t, run, got)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Same(t, run, latest)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Stats.Services)
	assert.Equal(t, 1, list[0].Stats.Operations)
}

func TestMemoryModelStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryModelStore(2)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, domain.ErrModelNotFound)

	_, err = s.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)

	_, err = s.Save(ctx, &Run{})
	assert.Error(t, err)
}

func TestMemoryModelStoreRetention(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryModelStore(2)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Save(ctx, newRun())
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err := s.Get(ctx, ids[0])
	assert.ErrorIs(t, err, ErrNotFound, "oldest run evicted")

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[1], list[0].ID)
	assert.Equal(t, ids[2], list[1].ID)
	assert.True(t, list[0].CreatedAt.Before(list[1].CreatedAt))
}

func TestMemoryModelStoreResaveMovesToLatest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryModelStore(4)

	first := newRun()
	_, err := s.Save(ctx, first)
	require.NoError(t, err)
	_, err = s.Save(ctx, newRun())
	require.NoError(t, err)
	_, err = s.Save(ctx, first)
	require.NoError(t, err)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Same(t, first, latest)

	list, _ := s.List(ctx)
	assert.Len(t, list, 2)

	require.NoError(t, s.Delete(ctx, first.ID))
	list, _ = s.List(ctx)
	assert.Len(t, list, 1)
}

func TestMemoryModelStoreConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryModelStore(100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run := newRun()
			run.ID = fmt.Sprintf("run-%d", i)
			_, err := s.Save(ctx, run)
			assert.NoError(t, err)
			_, err = s.Get(ctx, run.ID)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestMemoryModelStoreHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryModelStore(1).Save(ctx, newRun())
	assert.ErrorIs(t, err, context.Canceled)
}
