package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// maxUpdateRetries bounds the optimistic-lock retry loop. Contention on a
// single session is a couple of writers at most (pipeline + gateway), so the
// loop terminates in one or two rounds in practice.
const maxUpdateRetries = 100

// RedisSessionRepository is the shared context store. It is the only resource
// shared across connections/processes; session records are independent keys so
// redis key-level TTLs give us the expiry semantics directly. Read-modify-write
// cycles run inside a WATCH transaction with the write applied via TxPipelined,
// so concurrent updates to the same record never overwrite each other.
type RedisSessionRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ contract.ISessionRepository = &RedisSessionRepository{}

func NewRedisSessionRepository(rdb *redis.Client, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{
		rdb: rdb,
		ttl: ttl,
	}
}

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func (r *RedisSessionRepository) load(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, contract.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var session entity.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session record: %w", err)
	}
	return &session, nil
}

// update applies mutate to the current record under WATCH and writes it back
// in a single MULTI/EXEC round trip. ttl <= 0 keeps the key's remaining TTL.
// A concurrent write to the same key aborts the EXEC and the cycle retries
// against the fresh record.
func (r *RedisSessionRepository) update(ctx context.Context, id uuid.UUID, ttl time.Duration, mutate func(*entity.Session)) (*entity.Session, error) {
	key := sessionKey(id)
	var updated *entity.Session

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return contract.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get session: %w", err)
		}

		var session entity.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			return fmt.Errorf("unmarshal session record: %w", err)
		}
		mutate(&session)

		payload, err := json.Marshal(&session)
		if err != nil {
			return fmt.Errorf("marshal session record: %w", err)
		}

		expire := ttl
		if expire <= 0 {
			expire = redis.KeepTTL
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, expire)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &session
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.rdb.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("redis update session: retries exhausted on %s", key)
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *entity.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if err := r.rdb.Set(ctx, sessionKey(session.Id), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	return r.load(ctx, id)
}

func (r *RedisSessionRepository) GetAndTouch(ctx context.Context, id uuid.UUID) (*entity.Session, error) {
	// Full TTL restart: this path only runs for accepted messages from the
	// owning connection.
	return r.update(ctx, id, r.ttl, func(session *entity.Session) {
		session.LastActivityAt = time.Now()
	})
}

func (r *RedisSessionRepository) AppendTurn(ctx context.Context, id uuid.UUID, turn *entity.Turn) (*entity.Session, error) {
	return r.update(ctx, id, r.ttl, func(session *entity.Session) {
		session.History = append(session.History, turn)
		session.LastActivityAt = time.Now()
	})
}

func (r *RedisSessionRepository) SetActiveTurn(ctx context.Context, id uuid.UUID, turnId *uuid.UUID) error {
	// Bookkeeping only: keep the remaining TTL so inspection-like writes do
	// not masquerade as client activity.
	_, err := r.update(ctx, id, 0, func(session *entity.Session) {
		session.ActiveTurnId = turnId
	})
	return err
}

func (r *RedisSessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}
