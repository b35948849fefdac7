// Package actions turns untrusted model text into ERP write operations.
// Extraction, validation and execution are separate steps; nothing reaches
// the ERP without passing the Gate.
package actions

import (
	"encoding/json"
	"fmt"
)

// Marker starts an inline directive; the rest of its line is a JSON record.
const Marker = "DATABASE_OPERATION:"

type Provenance string

const (
	ProvenanceDirective Provenance = "directive"
	// ProvenanceCodeBlock candidates come from fenced code and are lower trust.
	ProvenanceCodeBlock Provenance = "code_block"
)

type State string

const (
	StateScanned              State = "scanned"
	StateParsed               State = "parsed"
	StateParseFailed          State = "parse_failed"
	StateValidated            State = "validated"
	StateRejected             State = "rejected"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateExecuted             State = "executed"
	StateExecutionFailed      State = "execution_failed"
)

// Terminal reports whether no further transition is possible for this
// turn. Awaiting candidates only move on an explicit confirmation.
func (s State) Terminal() bool {
	switch s {
	case StateParseFailed, StateRejected, StateExecuted, StateExecutionFailed, StateAwaitingConfirmation:
		return true
	}
	return false
}

// Rejection reasons.
const (
	ReasonMalformedDirective = "malformed_directive"
	ReasonMalformedCodeBlock = "malformed_code_block"
	ReasonMethodNotAllowed   = "method_not_allowed"
	ReasonModelNotAllowed    = "model_not_allowed"
	ReasonInvalidModel       = "invalid_model"
	ReasonMissingID          = "missing_id"
	ReasonInvalidID          = "invalid_id"
	ReasonMissingValues      = "missing_values"
	ReasonCreateDisabled     = "create_disabled"
)

// Descriptor is one ERP call: model.method(*args, **kwargs).
type Descriptor struct {
	Model  string         `json:"model"`
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// Candidate tracks one detected operation through the pipeline.
type Candidate struct {
	ID         string          `json:"id"`
	Provenance Provenance      `json:"provenance"`
	Source     string          `json:"source"`
	Descriptor *Descriptor     `json:"descriptor,omitempty"`
	State      State           `json:"state"`
	Reason     string          `json:"reason,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`

	// byte span of a directive payload in the scanned text
	start, end int
}

// Outcome is the short user-facing verdict.
func (c *Candidate) Outcome() string {
	switch c.State {
	case StateValidated:
		return "valid"
	case StateParseFailed, StateRejected:
		return "rejected: " + c.Reason
	case StateExecutionFailed:
		return "execution_failed: " + c.Reason
	default:
		return string(c.State)
	}
}

func (c *Candidate) String() string {
	if c.Descriptor == nil {
		return fmt.Sprintf("%s[%s]", c.Provenance, c.State)
	}
	return fmt.Sprintf("%s %s.%s[%s]", c.Provenance, c.Descriptor.Model, c.Descriptor.Method, c.State)
}

func (c *Candidate) reject(reason string) {
	c.State = StateRejected
	c.Reason = reason
}
