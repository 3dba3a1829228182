package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TurnArchive is the durable copy of a finalized conversation turn. Live
// session state stays in the TTL store; rows here outlive the session.
type TurnArchive struct {
	Id          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId   uuid.UUID      `gorm:"type:uuid;not null;index"`
	TurnId      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex"`
	MessageId   string         `gorm:"type:varchar(255);not null"`
	Role        string         `gorm:"type:varchar(50);not null"`
	Modality    string         `gorm:"type:varchar(50);not null"`
	Content     string         `gorm:"type:text;not null"`
	Sources     datatypes.JSON `gorm:"type:jsonb"`
	LatencyMs   int64          `gorm:"not null;default:0"`
	CompletedAt time.Time      `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
}

func (TurnArchive) TableName() string {
	return "turn_archive"
}
