// Package session stores the state of every connected IDE session.
package session

import (
	"context"
	"sort"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/doc-lsp/src/dlsp/entity"
	"github.com/uber/doc-lsp/src/dlsp/internal/errors"
	"github.com/uber/doc-lsp/src/dlsp/mapper"
	"github.com/uber/doc-lsp/src/dlsp/model"
)

// Repository is an entity-scoped repository.
type Repository interface {
	Get(context.Context, uuid.UUID) (*entity.Session, error)
	GetFromContext(ctx context.Context) (*entity.Session, error)
	// GetAllContaining returns the sessions with a workspace folder that is, or contains, the given path.
	GetAllContaining(ctx context.Context, path string) ([]*entity.Session, error)
	GetAll(ctx context.Context) ([]*entity.Session, error)
	Set(context.Context, *entity.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	SessionCount(ctx context.Context) (int, error)
}

type repository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*model.Session
	active   tally.Gauge
}

// New returns an in-memory session repository.
func New(stats tally.Scope) Repository {
	return &repository{
		sessions: make(map[uuid.UUID]*model.Session),
		active:   stats.Gauge("active_connections"),
	}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.sessions[id]
	if !ok {
		return nil, &errors.UUIDNotFoundError{UUID: id}
	}
	return mapper.ModelToSession(m)
}

func (r *repository) GetFromContext(ctx context.Context) (*entity.Session, error) {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// Set stores a copy of the session, replacing any previous state for its UUID.
func (r *repository) Set(ctx context.Context, s *entity.Session) error {
	if s == nil {
		return errors.New("can't save nil session")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.UUID] = mapper.SessionToModel(s)
	r.active.Update(float64(len(r.sessions)))
	return nil
}

// Delete is a no-op for unknown ids.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	r.active.Update(float64(len(r.sessions)))
	return nil
}

func (r *repository) SessionCount(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), nil
}

// GetAll returns every session, ordered by UUID.
func (r *repository) GetAll(ctx context.Context) ([]*entity.Session, error) {
	return r.collect(func(*model.Session) bool { return true })
}

func (r *repository) GetAllContaining(ctx context.Context, path string) ([]*entity.Session, error) {
	return r.collect(func(m *model.Session) bool {
		for _, folder := range m.WorkspaceFolders {
			if (entity.Project{Root: folder}).Contains(path) {
				return true
			}
		}
		return false
	})
}

// collect returns the matching sessions ordered by UUID.
func (r *repository) collect(match func(*model.Session) bool) ([]*entity.Session, error) {
	r.mu.RLock()
	matched := make([]*model.Session, 0, len(r.sessions))
	for _, m := range r.sessions {
		if match(m) {
			matched = append(matched, m)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UUID.String() < matched[j].UUID.String()
	})

	result := make([]*entity.Session, 0, len(matched))
	for _, m := range matched {
		s, err := mapper.ModelToSession(m)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}
