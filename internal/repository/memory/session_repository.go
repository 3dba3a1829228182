package memory

import (
	"context"
	"sync"
	"time"

	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// SessionRepository is the in-memory context store used for single-node runs
// and tests. TTL bookkeeping is delegated to go-cache per-item expirations.
// All writes replace the cached record with a fresh clone under the mutex, so
// a record handed out by Get is never mutated after the fact and concurrent
// read-modify-write cycles serialize the same way the redis store does.
type SessionRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

var _ contract.ISessionRepository = &SessionRepository{}

func NewSessionRepository(ttl time.Duration) *SessionRepository {
	// Purge expired sessions every 10 minutes
	c := cache.New(ttl, 10*time.Minute)
	return &SessionRepository{
		cache: c,
		ttl:   ttl,
	}
}

func (r *SessionRepository) Create(_ context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Set(session.Id.String(), session.Clone(), r.ttl)
	return nil
}

func (r *SessionRepository) Get(_ context.Context, id uuid.UUID) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, found := r.cache.Get(id.String())
	if !found {
		return nil, contract.ErrSessionNotFound
	}
	return x.(*entity.Session).Clone(), nil
}

func (r *SessionRepository) GetAndTouch(_ context.Context, id uuid.UUID) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, found := r.cache.Get(id.String())
	if !found {
		return nil, contract.ErrSessionNotFound
	}
	session := x.(*entity.Session).Clone()
	session.LastActivityAt = time.Now()
	// Re-set to restart the item's TTL clock
	r.cache.Set(id.String(), session, r.ttl)
	return session.Clone(), nil
}

func (r *SessionRepository) AppendTurn(_ context.Context, id uuid.UUID, turn *entity.Turn) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, found := r.cache.Get(id.String())
	if !found {
		return nil, contract.ErrSessionNotFound
	}
	session := x.(*entity.Session).Clone()
	session.History = append(session.History, turn)
	session.LastActivityAt = time.Now()
	r.cache.Set(id.String(), session, r.ttl)
	return session.Clone(), nil
}

func (r *SessionRepository) SetActiveTurn(_ context.Context, id uuid.UUID, turnId *uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	x, found := r.cache.Get(id.String())
	if !found {
		return contract.ErrSessionNotFound
	}
	session := x.(*entity.Session).Clone()
	session.ActiveTurnId = nil
	if turnId != nil {
		v := *turnId
		session.ActiveTurnId = &v
	}
	// Keep the remaining TTL: active-turn bookkeeping is not client activity
	if _, expiry, ok := r.cache.GetWithExpiration(id.String()); ok && !expiry.IsZero() {
		r.cache.Set(id.String(), session, time.Until(expiry))
		return nil
	}
	r.cache.Set(id.String(), session, r.ttl)
	return nil
}

func (r *SessionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(id.String())
	return nil
}
