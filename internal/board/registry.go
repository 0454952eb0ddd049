package board

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Registry owns one Manager per board. Managers are created and loaded on first use.
type Registry struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	managers map[int64]*entry
}

type entry struct {
	manager *Manager
	once    sync.Once
}

// NewRegistry creates an empty registry sharing backend and options across boards.
func NewRegistry(backend Backend, opts Options, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		backend:  backend,
		opts:     opts,
		logger:   logger,
		managers: make(map[int64]*entry),
	}
}

// Options returns the column configuration shared by every board.
func (r *Registry) Options() Options {
	return r.opts
}

// Get returns the manager of boardID, loading it when it is new. Concurrent callers wait for
// the first load, which outlives the caller's cancellation. The manager is returned even when its latest load failed, together with
// that failure.
func (r *Registry) Get(ctx context.Context, boardID int64) (*Manager, error) {
	r.mu.Lock()
	e, ok := r.managers[boardID]
	if !ok {
		e = &entry{manager: NewManager(boardID, r.backend, r.opts, r.logger)}
		r.managers[boardID] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reloadTimeout)
		defer cancel()
		_ = e.manager.Load(loadCtx)
	})
	return e.manager, e.manager.Err()
}

// Invalidate reloads a board after cards were written behind its manager's back. Boards
// without a manager are left alone.
func (r *Registry) Invalidate(ctx context.Context, boardID int64) error {
	r.mu.Lock()
	e, ok := r.managers[boardID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return e.manager.Load(ctx)
}

// Forget drops the manager of a deleted board.
func (r *Registry) Forget(boardID int64) {
	r.mu.Lock()
	delete(r.managers, boardID)
	r.mu.Unlock()
}

// Len returns the number of managed boards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}
