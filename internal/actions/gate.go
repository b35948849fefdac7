package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CreatePolicy decides what happens to validated create operations.
type CreatePolicy string

const (
	CreateExecute  CreatePolicy = "execute"
	CreateConfirm  CreatePolicy = "confirm"
	CreateDisabled CreatePolicy = "disabled"
)

func ParseCreatePolicy(s string) (CreatePolicy, error) {
	switch p := CreatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CreateExecute, CreateConfirm, CreateDisabled:
		return p, nil
	case "":
		return CreateConfirm, nil
	default:
		return "", fmt.Errorf("unknown create policy %q", s)
	}
}

// AnyModel in a policy entry allows every identifier-shaped model.
const AnyModel = "*"

// Policy is the allow-list: method name to the models it may target.
type Policy struct {
	Methods map[string][]string `yaml:"methods"`
}

// DefaultPolicy allows write and create on any model, plus the sales agent
// entry point.
func DefaultPolicy() Policy {
	return Policy{Methods: map[string][]string{
		"write":               {AnyModel},
		"create":              {AnyModel},
		"process_instruction": {"sales.agent"},
	}}
}

// LoadPolicy reads a YAML allow-list. It replaces the default one entirely.
func LoadPolicy(path string) (Policy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	var p Policy
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if len(p.Methods) == 0 {
		return Policy{}, errors.New("policy file allows no methods")
	}
	for method, models := range p.Methods {
		if len(models) == 0 {
			return Policy{}, fmt.Errorf("policy method %q lists no models", method)
		}
	}
	return p, nil
}

// MethodNames returns the allowed methods, sorted.
func (p Policy) MethodNames() []string {
	out := make([]string, 0, len(p.Methods))
	for m := range p.Methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (p Policy) allows(method, model string) (methodOK, modelOK bool) {
	models, ok := p.Methods[method]
	if !ok {
		return false, false
	}
	for _, m := range models {
		if m == AnyModel || m == model {
			return true, true
		}
	}
	return true, false
}

var modelName = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z0-9_]+)*$`)

// Gate validates parsed candidates. It never talks to the ERP.
type Gate struct {
	policy Policy
	create CreatePolicy
}

func NewGate(policy Policy, create CreatePolicy) *Gate {
	if create == "" {
		create = CreateConfirm
	}
	return &Gate{policy: policy, create: create}
}

// Validate moves a PARSED candidate to VALIDATED, AWAITING_CONFIRMATION or
// REJECTED. Ids of write calls are normalised to a list of int64.
func (g *Gate) Validate(c *Candidate) {
	if c.State != StateParsed || c.Descriptor == nil {
		return
	}
	d := c.Descriptor

	methodOK, modelOK := g.policy.allows(d.Method, d.Model)
	switch {
	case !methodOK:
		c.reject(ReasonMethodNotAllowed)
		return
	case !modelName.MatchString(d.Model):
		c.reject(ReasonInvalidModel)
		return
	case !modelOK:
		c.reject(ReasonModelNotAllowed)
		return
	}

	switch d.Method {
	case "write":
		if len(d.Args) == 0 {
			c.reject(ReasonMissingID)
			return
		}
		ids, reason := coerceIDs(d.Args[0])
		if reason != "" {
			c.reject(reason)
			return
		}
		if len(d.Args) < 2 || !nonEmptyMapping(d.Args[1]) {
			c.reject(ReasonMissingValues)
			return
		}
		d.Args[0] = ids
	case "create":
		if len(d.Args) == 0 || !createValues(d.Args[0]) {
			c.reject(ReasonMissingValues)
			return
		}
		if g.create == CreateDisabled {
			c.reject(ReasonCreateDisabled)
			return
		}
	}

	c.State = StateValidated
	if d.Method == "create" && g.create == CreateConfirm {
		c.State = StateAwaitingConfirmation
	}
}

func coerceIDs(v any) ([]int64, string) {
	var raw []any
	switch t := v.(type) {
	case nil:
		return nil, ReasonMissingID
	case []any:
		raw = t
	default:
		raw = []any{t}
	}
	if len(raw) == 0 {
		return nil, ReasonMissingID
	}

	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, ok := coerceID(r)
		if !ok {
			return nil, ReasonInvalidID
		}
		ids = append(ids, id)
	}
	return ids, ""
}

func coerceID(v any) (int64, bool) {
	var id int64
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.ParseInt(t.String(), 10, 64)
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
				return 0, false
			}
			n = int64(f)
		}
		id = n
	case int64:
		id = t
	case int:
		id = int64(t)
	case float64:
		if t != math.Trunc(t) || math.Abs(t) > 1<<53 {
			return 0, false
		}
		id = int64(t)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		id = n
	default:
		return 0, false
	}
	return id, id > 0
}

func nonEmptyMapping(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) > 0
}

// createValues accepts one mapping or a non-empty list of mappings.
func createValues(v any) bool {
	if nonEmptyMapping(v) {
		return true
	}
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return false
	}
	for _, item := range list {
		if !nonEmptyMapping(item) {
			return false
		}
	}
	return true
}
