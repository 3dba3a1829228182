package contract

import (
	"context"
	"errors"

	"ai-voicechat-be/internal/entity"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session is missing or already expired.
var ErrSessionNotFound = errors.New("session not found or expired")

// ISessionRepository is the context store: per-session state with a TTL that
// is extended on activity. Sessions are independent, so implementations need
// no cross-session locking; each session has a single writer (its connection).
type ISessionRepository interface {
	// Create stores a fresh session with its full TTL.
	Create(ctx context.Context, session *entity.Session) error

	// Get reads a session without touching its TTL (read-only inspection).
	Get(ctx context.Context, id uuid.UUID) (*entity.Session, error)

	// GetAndTouch reads a session and extends its TTL in the same operation.
	// Used on accepted messages from the owning connection.
	GetAndTouch(ctx context.Context, id uuid.UUID) (*entity.Session, error)

	// AppendTurn appends a finalized turn to the session history, updates
	// last_activity_at and extends the TTL. Returns the updated session.
	AppendTurn(ctx context.Context, id uuid.UUID, turn *entity.Turn) (*entity.Session, error)

	// SetActiveTurn records (or clears, with nil) the turn currently owning
	// the session's pipeline. Does not extend the TTL by itself.
	SetActiveTurn(ctx context.Context, id uuid.UUID, turnId *uuid.UUID) error

	// Delete removes the session record.
	Delete(ctx context.Context, id uuid.UUID) error
}
