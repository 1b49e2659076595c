package memory

import (
	"sync"
	"time"

	"discussion-companion-be/internal/discussion"

	"github.com/patrickmn/go-cache"
)

// EvictFunc runs when a workspace expires or is removed.
type EvictFunc func(userID string, ws *discussion.Workspace)

// WorkspaceRepository keeps one discussion workspace per signed-in user.
// Workspaces idle for longer than ttl are evicted.
type WorkspaceRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewWorkspaceRepository(ttl time.Duration, onEvict EvictFunc) *WorkspaceRepository {
	c := cache.New(ttl, 10*time.Minute)
	if onEvict != nil {
		c.OnEvicted(func(key string, value interface{}) {
			if ws, ok := value.(*discussion.Workspace); ok {
				onEvict(key, ws)
			}
		})
	}
	return &WorkspaceRepository{
		cache: c,
	}
}

// GetOrCreate returns the user's workspace, building it with create when
// absent. Every call refreshes the expiry. The bool reports creation.
func (r *WorkspaceRepository) GetOrCreate(userID string, create func() *discussion.Workspace) (*discussion.Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if x, found := r.cache.Get(userID); found {
		ws := x.(*discussion.Workspace)
		r.cache.Set(userID, ws, cache.DefaultExpiration)
		return ws, false
	}

	ws := create()
	r.cache.Set(userID, ws, cache.DefaultExpiration)
	return ws, true
}

func (r *WorkspaceRepository) Get(userID string) (*discussion.Workspace, bool) {
	if x, found := r.cache.Get(userID); found {
		return x.(*discussion.Workspace), true
	}
	return nil, false
}

func (r *WorkspaceRepository) Delete(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(userID)
}

func (r *WorkspaceRepository) Count() int {
	return r.cache.ItemCount()
}
