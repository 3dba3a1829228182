package implementation

import (
	"context"

	"ai-voicechat-be/internal/model"
	"ai-voicechat-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TurnArchiveRepositoryImpl struct {
	db *gorm.DB
}

func NewTurnArchiveRepository(db *gorm.DB) contract.ITurnArchiveRepository {
	return &TurnArchiveRepositoryImpl{db: db}
}

func (r *TurnArchiveRepositoryImpl) Create(ctx context.Context, turn *model.TurnArchive) error {
	// The publisher may redeliver a turn; the unique turn_id index makes the
	// insert idempotent.
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "turn_id"}},
			DoNothing: true,
		}).
		Create(turn).Error
}

func (r *TurnArchiveRepositoryImpl) FindBySessionId(ctx context.Context, sessionId uuid.UUID) ([]*model.TurnArchive, error) {
	var turns []*model.TurnArchive
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionId).
		Order("completed_at ASC").
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	return turns, nil
}

func (r *TurnArchiveRepositoryImpl) CountBySessionId(ctx context.Context, sessionId uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.TurnArchive{}).
		Where("session_id = ?", sessionId).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
