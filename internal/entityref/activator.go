package entityref

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/erp"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/metrics"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/signal"
)

var (
	ErrUnknownModel = errors.New("model is not a reference kind")
	ErrInvalidID    = errors.New("reference id must be positive")
)

// Activation is the outcome of a user clicking a reference.
type Activation struct {
	Model  string         `json:"model"`
	ID     int64          `json:"id"`
	Status Status         `json:"status"`
	URL    string         `json:"url,omitempty"`
	Notice *signal.Notice `json:"notice,omitempty"`
}

// Activator checks record existence on demand. It only reads.
type Activator struct {
	client erp.Client
	webURL string
}

func NewActivator(client erp.Client, webURL string) *Activator {
	return &Activator{client: client, webURL: strings.TrimRight(webURL, "/")}
}

func (a *Activator) Activate(ctx context.Context, model string, id int64) (*Activation, error) {
	if !KnownModel(model) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	if id <= 0 {
		return nil, ErrInvalidID
	}

	log := observability.LoggerFromContext(ctx)
	act := &Activation{Model: model, ID: id}

	n, err := erp.Count(ctx, a.client, model, []any{[]any{"id", "=", id}})
	switch {
	case err != nil:
		log.Warn("reference lookup failed",
			zap.String("model", model),
			zap.Int64("id", id),
			zap.Error(err))
		act.Status = StatusError
		notice := signal.Danger(fmt.Sprintf("Could not look up %s: %v", label(model, id), err))
		act.Notice = &notice
	case n == 0:
		act.Status = StatusNotFound
		notice := signal.Warning(fmt.Sprintf("%s was not found", label(model, id)))
		act.Notice = &notice
	default:
		act.Status = StatusVerified
		act.URL = a.RecordURL(model, id)
	}

	metrics.RecordActivation(model, string(act.Status))
	return act, nil
}

// RecordURL is the ERP web client form view for one record.
func (a *Activator) RecordURL(model string, id int64) string {
	return fmt.Sprintf("%s/web#id=%d&model=%s&view_type=form", a.webURL, id, url.QueryEscape(model))
}

func label(model string, id int64) string {
	for _, k := range Kinds {
		if k.Model == model {
			return fmt.Sprintf("%s #%d", k.Display, id)
		}
	}
	return fmt.Sprintf("%s #%d", model, id)
}
