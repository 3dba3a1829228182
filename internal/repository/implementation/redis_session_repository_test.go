package implementation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/repository/contract"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T, ttl time.Duration) (*RedisSessionRepository, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSessionRepository(rdb, ttl), srv
}

func newRedisSession() *entity.Session {
	now := time.Now()
	return &entity.Session{
		Id:             uuid.New(),
		PrincipalId:    uuid.New(),
		CreatedAt:      now,
		LastActivityAt: now,
		Preferences:    entity.Preferences{TtsEnabled: true, Language: "en"},
		History:        []*entity.Turn{},
		TTLSeconds:     3600,
	}
}

func TestRedisCreateAndGet(t *testing.T) {
	repo, _ := newRedisRepo(t, time.Hour)
	sess := newRedisSession()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sess))

	got, err := repo.Get(ctx, sess.Id)
	require.NoError(t, err)
	assert.Equal(t, sess.Id, got.Id)
	assert.Equal(t, sess.PrincipalId, got.PrincipalId)
	assert.True(t, got.Preferences.TtsEnabled)
}

func TestRedisGetMissingSession(t *testing.T) {
	repo, _ := newRedisRepo(t, time.Hour)

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, contract.ErrSessionNotFound)
}

func TestRedisAppendTurnMissingSession(t *testing.T) {
	repo, _ := newRedisRepo(t, time.Hour)

	turn := &entity.Turn{Id: uuid.New(), Role: "user", Modality: "text", Content: "hi", CreatedAt: time.Now()}
	_, err := repo.AppendTurn(context.Background(), uuid.New(), turn)
	assert.ErrorIs(t, err, contract.ErrSessionNotFound)
}

func TestRedisConcurrentAppendsLoseNoTurns(t *testing.T) {
	repo, _ := newRedisRepo(t, time.Hour)
	sess := newRedisSession()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sess))

	const writers = 4
	const turnsPerWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < turnsPerWriter; i++ {
				turn := &entity.Turn{
					Id:        uuid.New(),
					Role:      "user",
					Modality:  "text",
					Content:   fmt.Sprintf("w%d-%d", w, i),
					CreatedAt: time.Now(),
				}
				_, err := repo.AppendTurn(ctx, sess.Id, turn)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	got, err := repo.Get(ctx, sess.Id)
	require.NoError(t, err)
	assert.Len(t, got.History, writers*turnsPerWriter, "every append must survive concurrent writers")
}

func TestRedisGetAndTouchRestartsTTL(t *testing.T) {
	repo, srv := newRedisRepo(t, time.Hour)
	sess := newRedisSession()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sess))
	srv.FastForward(30 * time.Minute)

	got, err := repo.GetAndTouch(ctx, sess.Id)
	require.NoError(t, err)
	assert.True(t, got.LastActivityAt.After(sess.LastActivityAt))
	assert.Equal(t, time.Hour, srv.TTL(sessionKey(sess.Id)))
}

func TestRedisSetActiveTurnKeepsRemainingTTL(t *testing.T) {
	repo, srv := newRedisRepo(t, time.Hour)
	sess := newRedisSession()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sess))
	srv.FastForward(30 * time.Minute)

	turnId := uuid.New()
	require.NoError(t, repo.SetActiveTurn(ctx, sess.Id, &turnId))

	got, err := repo.Get(ctx, sess.Id)
	require.NoError(t, err)
	require.NotNil(t, got.ActiveTurnId)
	assert.Equal(t, turnId, *got.ActiveTurnId)

	// Bookkeeping must not have restarted the TTL clock
	assert.Equal(t, 30*time.Minute, srv.TTL(sessionKey(sess.Id)))

	require.NoError(t, repo.SetActiveTurn(ctx, sess.Id, nil))
	got, err = repo.Get(ctx, sess.Id)
	require.NoError(t, err)
	assert.Nil(t, got.ActiveTurnId)
}

func TestRedisDelete(t *testing.T) {
	repo, _ := newRedisRepo(t, time.Hour)
	sess := newRedisSession()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sess))
	require.NoError(t, repo.Delete(ctx, sess.Id))

	_, err := repo.Get(ctx, sess.Id)
	assert.ErrorIs(t, err, contract.ErrSessionNotFound)
}
