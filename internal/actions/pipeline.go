package actions

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/Vovarama1992/odoo-ai-bridge/internal/metrics"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/observability"
	"github.com/Vovarama1992/odoo-ai-bridge/internal/signal"
)

// Report is what one pass over an assistant response produced.
type Report struct {
	Candidates []*Candidate
	Notices    []signal.Notice
	// Refresh lists models whose live views should reload, in first-seen order.
	Refresh []string
	// Visible is the text with parsed directive lines removed.
	Visible string
}

// Pipeline composes Extract, Gate and Executor.
type Pipeline struct {
	gate *Gate
	exec *Executor
}

func NewPipeline(gate *Gate, exec *Executor) *Pipeline {
	return &Pipeline{gate: gate, exec: exec}
}

// Run extracts every candidate from text, validates it and executes the
// validated ones in text order. It never fails; every outcome is reported.
func (p *Pipeline) Run(ctx context.Context, text string) *Report {
	log := observability.LoggerFromContext(ctx)

	cands := Extract(text)
	rep := &Report{Candidates: cands, Visible: hideDirectives(text, cands)}
	seen := map[string]bool{}

	for _, c := range cands {
		p.gate.Validate(c)

		if c.State == StateValidated {
			if err := p.exec.Execute(ctx, c); err == nil && !seen[c.Descriptor.Model] {
				seen[c.Descriptor.Model] = true
				rep.Refresh = append(rep.Refresh, c.Descriptor.Model)
			}
		}

		rep.Notices = append(rep.Notices, NoticeFor(c))
		metrics.RecordOperation(string(c.Provenance), string(c.State))
		log.Debug("operation candidate",
			zap.String("operation_id", c.ID),
			zap.String("provenance", string(c.Provenance)),
			zap.String("state", string(c.State)),
			zap.String("reason", c.Reason))
	}
	return rep
}

// Confirm executes a candidate held for confirmation.
func (p *Pipeline) Confirm(ctx context.Context, c *Candidate) (signal.Notice, error) {
	err := p.exec.Execute(ctx, c)
	if err == nil || c.State == StateExecutionFailed {
		metrics.RecordOperation(string(c.Provenance), string(c.State))
		return NoticeFor(c), nil
	}
	return signal.Notice{}, err
}

// NoticeFor renders the user notice for a candidate's current state.
func NoticeFor(c *Candidate) signal.Notice {
	what := "operation"
	if d := c.Descriptor; d != nil {
		what = fmt.Sprintf("%s on %s", d.Method, d.Model)
	}
	switch c.State {
	case StateExecuted:
		return signal.Success(fmt.Sprintf("Done: %s", what))
	case StateExecutionFailed:
		return signal.Danger(fmt.Sprintf("Failed: %s: %s", what, c.Reason))
	case StateAwaitingConfirmation:
		return signal.Warning(fmt.Sprintf("Confirm to run %s", what))
	case StateParseFailed:
		return signal.Warning(fmt.Sprintf("Ignored a malformed operation (%s)", c.Reason))
	case StateRejected:
		return signal.Warning(fmt.Sprintf("Rejected %s (%s)", what, c.Reason))
	default:
		return signal.Warning(fmt.Sprintf("%s is %s", what, c.State))
	}
}

var blankLines = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)

// hideDirectives drops the payload of every directive that parsed, with its
// line when nothing else is on it. Malformed directives stay visible.
func hideDirectives(text string, cands []*Candidate) string {
	var b strings.Builder
	last, hidden := 0, false
	for _, c := range cands {
		if c.Provenance != ProvenanceDirective || c.State == StateParseFailed {
			continue
		}
		hidden = true
		before := text[last:c.start]
		lineStart := strings.LastIndexByte(before, '\n') + 1
		if strings.TrimSpace(before[lineStart:]) == "" {
			b.WriteString(before[:lineStart])
			last = c.end
			if last < len(text) {
				last++ // the newline
			}
			continue
		}
		b.WriteString(strings.TrimRight(before, " \t"))
		last = c.end
	}
	if !hidden {
		return text
	}
	b.WriteString(text[last:])
	return strings.TrimSpace(blankLines.ReplaceAllString(b.String(), "\n\n"))
}
