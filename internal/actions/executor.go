package actions

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/erp"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
)

var ErrNotExecutable = errors.New("operation is not validated")

// Executor submits validated descriptors to the ERP. One attempt per call;
// mutations are not retried.
type Executor struct {
	client erp.Client
}

func NewExecutor(client erp.Client) *Executor {
	return &Executor{client: client}
}

// Execute runs c once and records EXECUTED or EXECUTION_FAILED on it.
// The returned error is the ERP failure, if any.
func (e *Executor) Execute(ctx context.Context, c *Candidate) error {
	if c.State != StateValidated && c.State != StateAwaitingConfirmation {
		return fmt.Errorf("%w: %s", ErrNotExecutable, c.State)
	}
	d := c.Descriptor
	log := observability.LoggerFromContext(ctx).With(
		zap.String("operation_id", c.ID),
		zap.String("model", d.Model),
		zap.String("method", d.Method),
		zap.String("provenance", string(c.Provenance)),
	)

	res, err := e.client.Execute(ctx, d.Model, d.Method, d.Args, d.Kwargs)
	if err != nil {
		c.State = StateExecutionFailed
		c.Reason = errorDetail(err)
		log.Warn("operation failed", zap.Error(err))
		return err
	}

	c.State = StateExecuted
	c.Result = res
	log.Info("operation executed")
	return nil
}

func errorDetail(err error) string {
	var remote *erp.RemoteError
	if errors.As(err, &remote) {
		return remote.Message
	}
	return err.Error()
}
