package preview

import (
	"context"
	"sort"
	"sync"

	"github.com/roseram/previewd/internal/storage"
	"github.com/roseram/previewd/internal/types"
)

// Registry tracks active preview instances keyed by project ID. It is
// injected into the Manager so a durable store can replace the in-memory
// map without touching call sites. Get returns nil, nil for unknown
// projects.
type Registry interface {
	Put(ctx context.Context, p *types.PreviewInstance) error
	Get(ctx context.Context, projectID string) (*types.PreviewInstance, error)
	List(ctx context.Context) ([]*types.PreviewInstance, error)
	Delete(ctx context.Context, projectID string) error
}

// MemoryRegistry is the default single-process registry. It does not
// survive restarts and is not safe to share across daemon instances.
type MemoryRegistry struct {
	mu        sync.RWMutex
	instances map[string]*types.PreviewInstance
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{instances: make(map[string]*types.PreviewInstance)}
}

func (r *MemoryRegistry) Put(ctx context.Context, p *types.PreviewInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[p.ProjectID] = p
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, projectID string) (*types.PreviewInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[projectID], nil
}

func (r *MemoryRegistry) List(ctx context.Context) ([]*types.PreviewInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.PreviewInstance, 0, len(r.instances))
	for _, p := range r.instances {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

func (r *MemoryRegistry) Delete(ctx context.Context, projectID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, projectID)
	return nil
}

// StoreRegistry persists instances through the storage layer so the
// registry survives daemon restarts. Single-node only: there is no
// cross-instance locking.
type StoreRegistry struct {
	store storage.Storage
}

// NewStoreRegistry wraps a storage backend as a Registry.
func NewStoreRegistry(store storage.Storage) *StoreRegistry {
	return &StoreRegistry{store: store}
}

func (r *StoreRegistry) Put(ctx context.Context, p *types.PreviewInstance) error {
	return r.store.SavePreview(ctx, p)
}

func (r *StoreRegistry) Get(ctx context.Context, projectID string) (*types.PreviewInstance, error) {
	return r.store.GetPreview(ctx, projectID)
}

func (r *StoreRegistry) List(ctx context.Context) ([]*types.PreviewInstance, error) {
	return r.store.ListPreviews(ctx)
}

func (r *StoreRegistry) Delete(ctx context.Context, projectID string) error {
	return r.store.DeletePreview(ctx, projectID)
}
