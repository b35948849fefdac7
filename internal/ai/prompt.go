package ai

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
)

const basePrompt = `
You are the assistant of an Odoo ERP system. You can:
1. Answer questions about the records of the system
2. Change records when the user asks you to

Rules for changing records:
- Emit exactly one line per change, on its own line, in this form:
  DATABASE_OPERATION:{"model": "model.name", "method": "write", "args": [[record_id], {"field": value}], "kwargs": {}}
- To create a record use "method": "create" and "args": [{"field": value}].
- The JSON must be valid and must stay on a single line.
- Only these methods are accepted: {{methods}}. Anything else is refused.
- Never invent record ids. Use ids from the data below or ask the user.
- Say in plain words what you are about to change before the operation line.

When you mention a record, write its kind followed by its id, for example
"WO #882", "MO 41", "SO 12", "PO 7", "lead 3", "invoice 15" or "partner 9".
`

const contextHeader = `
Current ERP data (YAML):
`

// ContextSource renders live ERP data for the prompt.
type ContextSource interface {
	Snapshot(ctx context.Context) (string, error)
}

// PromptBuilder assembles the system prompt for the direct model adapters.
type PromptBuilder struct {
	source  ContextSource
	methods []string
}

// NewPromptBuilder returns a builder. source may be nil.
func NewPromptBuilder(source ContextSource, methods []string) *PromptBuilder {
	return &PromptBuilder{source: source, methods: methods}
}

// Build never fails; a missing snapshot only drops the data section.
func (b *PromptBuilder) Build(ctx context.Context) string {
	methods := []string{"write", "create"}
	if b != nil && len(b.methods) > 0 {
		methods = b.methods
	}

	var sb strings.Builder
	sb.WriteString(strings.ReplaceAll(basePrompt, "{{methods}}", strings.Join(methods, ", ")))

	if snap := b.snapshot(ctx); snap != "" {
		sb.WriteString(contextHeader)
		sb.WriteString(snap)
	}
	return strings.TrimSpace(sb.String())
}

func (b *PromptBuilder) snapshot(ctx context.Context) string {
	if b == nil || b.source == nil {
		return ""
	}
	snap, err := b.source.Snapshot(ctx)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("erp snapshot unavailable", zap.Error(err))
		return ""
	}
	return snap
}
