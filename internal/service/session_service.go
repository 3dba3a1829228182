package service

import (
	"context"
	"time"

	"ai-voicechat-be/internal/dto"
	"ai-voicechat-be/internal/entity"
	"ai-voicechat-be/internal/pkg/logger"
	"ai-voicechat-be/internal/repository/contract"
	"ai-voicechat-be/pkg/events"
	"ai-voicechat-be/pkg/nats"

	"github.com/google/uuid"
)

type ISessionService interface {
	// Create starts a fresh session for the principal with its full TTL.
	Create(ctx context.Context, principalId uuid.UUID, prefs dto.PreferencesDTO) (*entity.Session, error)

	// Resume re-attaches to an existing session, extending its TTL. Returns
	// contract.ErrSessionNotFound when the session is gone, expired or owned
	// by another principal. A turn left running by a dropped connection is
	// abandoned: its marker is cleared so the session accepts new messages.
	Resume(ctx context.Context, sessionId, principalId uuid.UUID) (*entity.Session, error)

	// Snapshot returns a read-only view of the session without touching its
	// TTL. Scoped to the owning principal.
	Snapshot(ctx context.Context, sessionId, principalId uuid.UUID) (*dto.SessionSnapshotResponse, error)
}

type sessionService struct {
	sessions   contract.ISessionRepository
	publisher  *nats.Publisher // nil when eventing is disabled
	logger     logger.ILogger
	ttlSeconds int
}

func NewSessionService(
	sessions contract.ISessionRepository,
	publisher *nats.Publisher,
	log logger.ILogger,
	ttlSeconds int,
) ISessionService {
	return &sessionService{
		sessions:   sessions,
		publisher:  publisher,
		logger:     log,
		ttlSeconds: ttlSeconds,
	}
}

func (s *sessionService) Create(ctx context.Context, principalId uuid.UUID, prefs dto.PreferencesDTO) (*entity.Session, error) {
	now := time.Now()
	session := &entity.Session{
		Id:             uuid.New(),
		PrincipalId:    principalId,
		CreatedAt:      now,
		LastActivityAt: now,
		Preferences: entity.Preferences{
			TtsEnabled: prefs.TtsEnabled,
			VoiceId:    prefs.VoiceId,
			Language:   prefs.Language,
		},
		History:    []*entity.Turn{},
		TTLSeconds: s.ttlSeconds,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("SessionService", "Session created", map[string]interface{}{
		"session_id":   session.Id,
		"principal_id": principalId,
	})
	s.mirror(ctx, events.TypeSessionCreated, session)
	return session, nil
}

func (s *sessionService) Resume(ctx context.Context, sessionId, principalId uuid.UUID) (*entity.Session, error) {
	session, err := s.sessions.GetAndTouch(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.PrincipalId != principalId {
		// Treat foreign sessions as missing so the caller cannot probe them
		return nil, contract.ErrSessionNotFound
	}

	if session.ActiveTurnId != nil {
		s.logger.Warn("SessionService", "Abandoning in-flight turn from previous connection", map[string]interface{}{
			"session_id": sessionId,
			"turn_id":    *session.ActiveTurnId,
		})
		if err := s.sessions.SetActiveTurn(ctx, sessionId, nil); err != nil {
			return nil, err
		}
		session.ActiveTurnId = nil
	}

	s.logger.Info("SessionService", "Session resumed", map[string]interface{}{
		"session_id":   sessionId,
		"principal_id": principalId,
		"turns":        len(session.History),
	})
	s.mirror(ctx, events.TypeSessionResumed, session)
	return session, nil
}

func (s *sessionService) Snapshot(ctx context.Context, sessionId, principalId uuid.UUID) (*dto.SessionSnapshotResponse, error) {
	session, err := s.sessions.Get(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.PrincipalId != principalId {
		return nil, contract.ErrSessionNotFound
	}

	turns := make([]dto.SnapshotTurnDTO, 0, len(session.History))
	for _, t := range session.History {
		turn := dto.SnapshotTurnDTO{
			Id:        t.Id,
			Role:      t.Role,
			Modality:  t.Modality,
			Content:   t.Content,
			CreatedAt: t.CreatedAt,
		}
		for _, src := range t.Sources {
			turn.Sources = append(turn.Sources, dto.SourceDTO{Title: src.Title, Url: src.Url})
		}
		turns = append(turns, turn)
	}

	return &dto.SessionSnapshotResponse{
		Id:             session.Id,
		PrincipalId:    session.PrincipalId,
		CreatedAt:      session.CreatedAt,
		LastActivityAt: session.LastActivityAt,
		Preferences: dto.PreferencesDTO{
			TtsEnabled: session.Preferences.TtsEnabled,
			VoiceId:    session.Preferences.VoiceId,
			Language:   session.Preferences.Language,
		},
		Turns:        turns,
		ActiveTurnId: session.ActiveTurnId,
	}, nil
}

// mirror publishes a lifecycle event to the external bus. Failures are logged
// and swallowed; the bus is an observer, never a dependency.
func (s *sessionService) mirror(ctx context.Context, eventType string, session *entity.Session) {
	if s.publisher == nil {
		return
	}
	ev := events.BaseEvent{
		Type: eventType,
		Data: map[string]interface{}{
			"session_id":   session.Id.String(),
			"principal_id": session.PrincipalId.String(),
			"turns":        len(session.History),
		},
		OccurredAt: time.Now(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("SessionService", "Failed to mirror lifecycle event", map[string]interface{}{
			"event_type": eventType,
			"error":      err.Error(),
		})
	}
}
