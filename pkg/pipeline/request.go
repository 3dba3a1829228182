package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// State is the per-turn lifecycle: Running -> Completed | Failed | Cancelled.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Request is one in-flight unit of work for a single turn. It is cancellable
// as a unit: barge-in or an explicit client cancel flips it to Cancelled and
// the owning pipeline observes that at its next stage boundary.
type Request struct {
	TurnId    uuid.UUID
	SessionId uuid.UUID
	MessageId string

	ctx      context.Context
	cancelFn context.CancelFunc

	mu    sync.Mutex
	state State
	stage string
}

func NewRequest(parent context.Context, sessionId uuid.UUID, messageId string) *Request {
	ctx, cancel := context.WithCancel(parent)
	return &Request{
		TurnId:    uuid.New(),
		SessionId: sessionId,
		MessageId: messageId,
		ctx:       ctx,
		cancelFn:  cancel,
		state:     StateRunning,
	}
}

// Context is cancelled together with the request; stage calls derive their
// per-stage timeout contexts from it.
func (r *Request) Context() context.Context {
	return r.ctx
}

// EnterStage marks the stage boundary. Returns false when the request is no
// longer running, which is the cooperative cancellation point.
func (r *Request) EnterStage(stage string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return false
	}
	r.stage = stage
	return true
}

func (r *Request) Stage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Cancel transitions Running -> Cancelled. Safe to call repeatedly and from
// any goroutine; terminal states are never overwritten.
func (r *Request) Cancel() {
	r.mu.Lock()
	if r.state == StateRunning {
		r.state = StateCancelled
	}
	r.mu.Unlock()
	r.cancelFn()
}

// Complete transitions Running -> Completed. Returns false if the request
// was cancelled or failed first.
func (r *Request) Complete() bool {
	return r.transition(StateCompleted)
}

// Fail transitions Running -> Failed. Returns false if the request was
// cancelled or completed first; the caller must then stay silent.
func (r *Request) Fail() bool {
	return r.transition(StateFailed)
}

func (r *Request) transition(to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return false
	}
	r.state = to
	return true
}

func (r *Request) Cancelled() bool {
	return r.State() == StateCancelled
}

// Registry tracks the authoritative request per session and implements
// barge-in: beginning a new turn cancels the previous one.
type Registry struct {
	mu     sync.Mutex
	active map[uuid.UUID]*Request
}

func NewRegistry() *Registry {
	return &Registry{
		active: make(map[uuid.UUID]*Request),
	}
}

// Begin cancels the session's current request (if any) and installs a new
// one. The returned request is authoritative from this point on.
func (g *Registry) Begin(parent context.Context, sessionId uuid.UUID, messageId string) *Request {
	req := NewRequest(parent, sessionId, messageId)

	g.mu.Lock()
	prev := g.active[sessionId]
	g.active[sessionId] = req
	g.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	return req
}

// CancelActive cancels the session's current request without starting a new
// one (explicit client cancel frame). Returns false when nothing is running.
func (g *Registry) CancelActive(sessionId uuid.UUID) bool {
	g.mu.Lock()
	req := g.active[sessionId]
	g.mu.Unlock()

	if req == nil || req.State() != StateRunning {
		return false
	}
	req.Cancel()
	return true
}

// Finish removes the request if it is still the session's authoritative one.
func (g *Registry) Finish(req *Request) {
	g.mu.Lock()
	if g.active[req.SessionId] == req {
		delete(g.active, req.SessionId)
	}
	g.mu.Unlock()
}

// Active returns the session's current request, or nil.
func (g *Registry) Active(sessionId uuid.UUID) *Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[sessionId]
}
