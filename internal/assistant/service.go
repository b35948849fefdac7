package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/actions"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/ai"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/entityref"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/metrics"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/reflow"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/session"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/signal"
)

type service struct {
	sessions *session.Manager
	ai       ai.AI
	pipeline *actions.Pipeline
	sink     signal.Sink
}

func NewService(sessions *session.Manager, aiClient ai.AI, pipeline *actions.Pipeline, sink signal.Sink) Service {
	if sink == nil {
		sink = signal.Discard{}
	}
	return &service{
		sessions: sessions,
		ai:       aiClient,
		pipeline: pipeline,
		sink:     sink,
	}
}

func (s *service) HandleUserMessage(ctx context.Context, sessionID, text string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrInputRejected
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusActive {
		return nil, fmt.Errorf("%w: %s", session.ErrNotActive, sess.Status)
	}

	release, err := s.sessions.Acquire(sessionID)
	if err != nil {
		metrics.RecordBusyRejection()
		return nil, fmt.Errorf("%w: %w", ErrSessionBusy, err)
	}
	defer release()

	log := observability.LoggerFromContext(ctx).With(zap.String("session_id", sessionID))
	log.Info("user message", zap.Int("chars", len(text)))

	userTurn, err := s.sessions.Append(ctx, sessionID, session.RoleUser, text)
	if err != nil {
		return nil, err
	}
	s.publishTurn(sessionID, userTurn)

	history, err := s.sessions.ModelHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// the new message travels separately from its history, unescaped
	if n := len(history); n > 0 {
		history = history[:n-1]
	}

	res := &Result{UserTurn: userTurn}

	raw, err := s.ai.Reply(ctx, text, history)
	if err != nil {
		log.Warn("model call failed", zap.Error(err))
		notice := signal.Danger("The assistant is unavailable right now. Please try again.")
		res.Notices = append(res.Notices, notice)
		s.publishNotice(sessionID, notice)
		return res, &ModelServiceError{Err: err}
	}

	// Once the model has answered, the turn is completed even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	formatted := reflow.Format(raw)
	rep := s.pipeline.Run(ctx, formatted)
	for _, c := range rep.Candidates {
		if c.State == actions.StateAwaitingConfirmation {
			s.sessions.Hold(sessionID, c)
		}
	}

	visible, refs := entityref.Linkify(rep.Visible)
	turn, err := s.sessions.Append(ctx, sessionID, session.RoleAssistant, visible)
	if err != nil {
		return nil, fmt.Errorf("store assistant turn: %w", err)
	}

	res.Turn = turn
	res.References = refs
	res.Operations = rep.Candidates
	res.Notices = append(res.Notices, rep.Notices...)
	res.Refresh = rep.Refresh

	s.publishTurn(sessionID, turn)
	for _, n := range rep.Notices {
		s.publishNotice(sessionID, n)
	}
	s.publishRefresh(sessionID, rep.Refresh)

	log.Info("assistant turn appended",
		zap.Int("references", len(refs)),
		zap.Int("operations", len(rep.Candidates)))
	return res, nil
}

func (s *service) ConfirmOperation(ctx context.Context, sessionID, opID string) (*Confirmation, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	release, err := s.sessions.Acquire(sessionID)
	if err != nil {
		metrics.RecordBusyRejection()
		return nil, fmt.Errorf("%w: %w", ErrSessionBusy, err)
	}
	defer release()

	c, err := s.sessions.Take(sessionID, opID)
	if err != nil {
		return nil, err
	}

	notice, err := s.pipeline.Confirm(context.WithoutCancel(ctx), c)
	if err != nil {
		return nil, err
	}

	out := &Confirmation{Operation: c, Notice: notice}
	if c.State == actions.StateExecuted {
		out.Refresh = []string{c.Descriptor.Model}
	}
	s.publishNotice(sessionID, notice)
	s.publishRefresh(sessionID, out.Refresh)
	return out, nil
}

func (s *service) publishTurn(sessionID string, t *session.Turn) {
	s.sink.Publish(signal.Event{Kind: signal.KindTurnAppended, SessionID: sessionID, Turn: t})
}

func (s *service) publishNotice(sessionID string, n signal.Notice) {
	s.sink.Publish(signal.Event{Kind: signal.KindNotice, SessionID: sessionID, Notice: &n})
}

func (s *service) publishRefresh(sessionID string, models []string) {
	if len(models) == 0 {
		return
	}
	s.sink.Publish(signal.Event{Kind: signal.KindRefresh, SessionID: sessionID, Models: models})
}

// IsModelServiceError reports whether err came from the model call.
func IsModelServiceError(err error) bool {
	var mse *ModelServiceError
	return errors.As(err, &mse)
}
