package inmemory

import (
	"context"
	"sort"
	"sync"

	"epingest/internal/domain/model"
	"epingest/internal/domain/repository"
)

// BuildingRepository is an in-memory implementation of
// repository.BuildingRepository.
type BuildingRepository struct {
	mu        sync.RWMutex
	buildings map[int]model.Building
}

// NewBuildingRepository creates an empty in-memory building store.
func NewBuildingRepository() *BuildingRepository {
	return &BuildingRepository{buildings: make(map[int]model.Building)}
}

// Get returns the building with the given ID, or
// repository.ErrBuildingNotFound.
func (r *BuildingRepository) Get(ctx context.Context, id int) (*model.Building, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buildings[id]
	if !ok {
		return nil, repository.ErrBuildingNotFound
	}
	return &b, nil
}

// List returns every building, ID ascending.
func (r *BuildingRepository) List(ctx context.Context) ([]model.Building, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Building, 0, len(r.buildings))
	for _, b := range r.buildings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Upsert inserts the building or replaces its attributes.
func (r *BuildingRepository) Upsert(ctx context.Context, b *model.Building) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buildings[b.ID] = *b
	return nil
}

var _ repository.BuildingRepository = (*BuildingRepository)(nil)
