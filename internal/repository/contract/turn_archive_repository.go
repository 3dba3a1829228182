package contract

import (
	"context"

	"ai-voicechat-be/internal/model"

	"github.com/google/uuid"
)

// ITurnArchiveRepository persists finalized turns outside the TTL store.
type ITurnArchiveRepository interface {
	Create(ctx context.Context, turn *model.TurnArchive) error
	FindBySessionId(ctx context.Context, sessionId uuid.UUID) ([]*model.TurnArchive, error)
	CountBySessionId(ctx context.Context, sessionId uuid.UUID) (int64, error)
}
