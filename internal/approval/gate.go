// Package approval asks the operator before each tool call and remembers
// tools approved for the rest of the session.
package approval

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Decision int

const (
	Denied Decision = iota
	Approved
	ApprovedForSession
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case ApprovedForSession:
		return "approved_for_session"
	default:
		return "denied"
	}
}

// Allowed reports whether the tool may run.
func (d Decision) Allowed() bool {
	return d == Approved || d == ApprovedForSession
}

// Request describes one proposed tool call.
type Request struct {
	// ID is filled in by the Gate when empty.
	ID   string
	Tool string
	Args string

	// Preview, when set, is shown to the operator instead of Args.
	Preview string
}

// Event is a state change announced to the operator.
type Event int

const (
	EventCached Event = iota
	EventApprovedForSession
	EventDenied
	EventExecuting
	EventCompleted
)

// Prompter is the operator-facing side of the Gate.
type Prompter interface {
	// Prompt shows req and returns the raw answer line.
	Prompt(ctx context.Context, req Request) (string, error)
	Announce(req Request, event Event)
}

// Indicator is a busy indicator. Stop must be safe to call when idle.
type Indicator interface {
	Start(label string)
	Stop()
}

// Observer is told about every decision, e.g. to keep an audit log.
type Observer func(req Request, decision Decision)

type Option func(*Gate)

func WithLogger(logger *zap.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(g *Gate) {
		g.observer = observer
	}
}

// Gate authorizes tool calls for one user request. Gates created for
// successive requests share the same Session.
type Gate struct {
	session   *Session
	prompter  Prompter
	indicator Indicator
	logger    *zap.Logger
	observer  Observer

	promptMu sync.Mutex
}

func NewGate(session *Session, prompter Prompter, indicator Indicator, opts ...Option) *Gate {
	if indicator == nil {
		indicator = noopIndicator{}
	}
	g := &Gate{
		session:   session,
		prompter:  prompter,
		indicator: indicator,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) Session() *Session {
	return g.session
}

// Authorize decides whether req may run. The indicator is always stopped
// first so a prompt is never drawn under a spinner. A Denied decision comes
// with a *DeniedError.
func (g *Gate) Authorize(ctx context.Context, req Request) (Decision, error) {
	g.indicator.Stop()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	g.promptMu.Lock()
	defer g.promptMu.Unlock()

	if g.session.IsApproved(req.Tool) {
		g.logger.Debug("tool call approved by session", zap.String("id", req.ID), zap.String("tool", req.Tool))
		g.prompter.Announce(req, EventCached)
		g.record(req, Approved)
		return Approved, nil
	}

	answer, err := g.prompter.Prompt(ctx, req)
	if err != nil {
		g.logger.Info("approval prompt failed, denying tool call", zap.String("id", req.ID), zap.String("tool", req.Tool), zap.Error(err))
		g.prompter.Announce(req, EventDenied)
		g.record(req, Denied)
		return Denied, &DeniedError{Tool: req.Tool, Err: err}
	}

	decision := parseAnswer(answer)
	switch decision {
	case ApprovedForSession:
		g.session.Approve(req.Tool)
		g.prompter.Announce(req, EventApprovedForSession)
	case Denied:
		g.prompter.Announce(req, EventDenied)
	}

	g.logger.Info("tool call decision", zap.String("id", req.ID), zap.String("tool", req.Tool), zap.Stringer("decision", decision))
	g.record(req, decision)

	if decision == Denied {
		return Denied, &DeniedError{Tool: req.Tool}
	}
	return decision, nil
}

// Run authorizes req and, if allowed, runs fn under an "Executing" indicator.
// fn is never called for a denied request.
func (g *Gate) Run(ctx context.Context, req Request, fn func(ctx context.Context) error) (Decision, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	decision, err := g.Authorize(ctx, req)
	if err != nil {
		return decision, err
	}

	g.prompter.Announce(req, EventExecuting)
	g.indicator.Start("Executing " + req.Tool)
	defer g.indicator.Stop()

	if err := fn(ctx); err != nil {
		return decision, err
	}
	g.prompter.Announce(req, EventCompleted)
	return decision, nil
}

func (g *Gate) record(req Request, decision Decision) {
	if g.observer != nil {
		g.observer(req, decision)
	}
}

func parseAnswer(answer string) Decision {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y":
		return Approved
	case "a":
		return ApprovedForSession
	default:
		return Denied
	}
}

type noopIndicator struct{}

func (noopIndicator) Start(string) {}
func (noopIndicator) Stop()        {}
