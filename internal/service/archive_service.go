package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/model"
	"ai-voicechat-be/internal/repository/contract"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"gorm.io/datatypes"
)

// IArchiveService drains the finalized-turn topic into durable storage.
type IArchiveService interface {
	Consume(ctx context.Context) error
}

type archiveService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	archive   contract.ITurnArchiveRepository
}

func NewArchiveService(
	pubSub *gochannel.GoChannel,
	topicName string,
	archive contract.ITurnArchiveRepository,
) IArchiveService {
	return &archiveService{
		pubSub:    pubSub,
		topicName: topicName,
		archive:   archive,
	}
}

func (as *archiveService) Consume(ctx context.Context) error {
	messages, err := as.pubSub.Subscribe(ctx, as.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			as.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (as *archiveService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.TurnFinalizedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal finalized turn: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	var sources datatypes.JSON
	if len(payload.Sources) > 0 {
		data, err := json.Marshal(payload.Sources)
		if err != nil {
			log.Printf("[ERROR] Failed to marshal sources for turn %s: %v", payload.TurnId, err)
			msg.Ack()
			return
		}
		sources = datatypes.JSON(data)
	}

	row := &model.TurnArchive{
		SessionId:   payload.SessionId,
		TurnId:      payload.TurnId,
		MessageId:   payload.MessageId,
		Role:        payload.Role,
		Modality:    payload.Modality,
		Content:     payload.Content,
		Sources:     sources,
		LatencyMs:   payload.LatencyMs,
		CompletedAt: payload.CompletedAt,
	}
	if row.CompletedAt.IsZero() {
		row.CompletedAt = time.Now()
	}

	if err := as.archive.Create(ctx, row); err != nil {
		log.Printf("[ERROR] Failed to archive turn %s: %v", payload.TurnId, err)
		msg.Nack() // Nack for retriable errors
		return
	}

	msg.Ack()
}
