package service

import (
	"context"
	"encoding/json"

	"ai-voicechat-be/internal/dto"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// IPublisherService hands finalized turns to the in-process bus. It satisfies
// the pipeline's TurnPublisher contract.
type IPublisherService interface {
	PublishTurnFinalized(ctx context.Context, msg *dto.TurnFinalizedMessage) error
}

type publisherService struct {
	pubSub    *gochannel.GoChannel
	topicName string
}

func NewPublisherService(pubSub *gochannel.GoChannel, topicName string) IPublisherService {
	return &publisherService{
		pubSub:    pubSub,
		topicName: topicName,
	}
}

func (ps *publisherService) PublishTurnFinalized(ctx context.Context, payload *dto.TurnFinalizedMessage) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	return ps.pubSub.Publish(ps.topicName, msg)
}
