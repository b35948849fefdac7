package ai

import (
	"context"
	"time"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/metrics"
)

type instrumented struct {
	provider string
	next     AI
}

// WithMetrics records call count and latency per provider.
func WithMetrics(provider string, next AI) AI {
	return &instrumented{provider: provider, next: next}
}

func (i *instrumented) Reply(ctx context.Context, message string, history []Message) (string, error) {
	start := time.Now()
	out, err := i.next.Reply(ctx, message, history)
	metrics.RecordModelCall(i.provider, time.Since(start), err)
	return out, err
}
