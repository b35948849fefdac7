package actions

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var fencedBlock = regexp.MustCompile("(?s)```[^\\n]*\\n(.*?)```")

// Extract scans text for directive lines and for write/create calls in
// fenced code. Candidates come back in text order per trigger, directives
// first, each either PARSED or PARSE_FAILED.
func Extract(text string) []*Candidate {
	out := extractDirectives(text)
	return append(out, extractCodeBlocks(text)...)
}

func extractDirectives(text string) []*Candidate {
	var out []*Candidate
	offset := 0
	for offset < len(text) {
		idx := strings.Index(text[offset:], Marker)
		if idx < 0 {
			break
		}
		start := offset + idx
		end := strings.IndexByte(text[start:], '\n')
		if end < 0 {
			end = len(text)
		} else {
			end += start
		}

		payload := text[start+len(Marker) : end]
		c := &Candidate{
			ID:         uuid.NewString(),
			Provenance: ProvenanceDirective,
			Source:     strings.TrimSpace(text[start:end]),
			State:      StateScanned,
			start:      start,
			end:        end,
		}
		if d, err := parseDirective(payload); err != nil {
			c.State = StateParseFailed
			c.Reason = ReasonMalformedDirective
		} else {
			c.Descriptor = d
			c.State = StateParsed
		}
		out = append(out, c)
		offset = end
	}
	return out
}

type directivePayload struct {
	Model  string         `json:"model"`
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// parseDirective decodes exactly one JSON object; trailing text on the line
// is an error.
func parseDirective(payload string) (*Descriptor, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var p directivePayload
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if off := int(dec.InputOffset()); strings.TrimSpace(payload[off:]) != "" {
		return nil, &syntaxError{pos: off, msg: "trailing data after directive"}
	}
	if p.Method == "" {
		return nil, &syntaxError{msg: "directive without method"}
	}

	if p.Args == nil {
		p.Args = []any{}
	}
	if p.Kwargs == nil {
		p.Kwargs = map[string]any{}
	}
	return &Descriptor{Model: p.Model, Method: p.Method, Args: p.Args, Kwargs: p.Kwargs}, nil
}

func extractCodeBlocks(text string) []*Candidate {
	var out []*Candidate
	for _, m := range fencedBlock.FindAllStringSubmatchIndex(text, -1) {
		body := text[m[2]:m[3]]

		pos := 0
		for pos < len(body) {
			lineEnd := strings.IndexByte(body[pos:], '\n')
			if lineEnd < 0 {
				lineEnd = len(body)
			} else {
				lineEnd += pos
			}
			line := body[pos:lineEnd]
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			head := line[indent:]

			if !strings.HasPrefix(head, "write(") && !strings.HasPrefix(head, "create(") {
				pos = lineEnd + 1
				continue
			}

			c := &Candidate{
				ID:         uuid.NewString(),
				Provenance: ProvenanceCodeBlock,
				State:      StateScanned,
			}
			parsed, err := parseCall(body[pos+indent:])
			if err != nil {
				c.Source = strings.TrimSpace(line)
				c.State = StateParseFailed
				c.Reason = ReasonMalformedCodeBlock
				out = append(out, c)
				pos = lineEnd + 1
				continue
			}

			c.Source = strings.TrimSpace(body[pos+indent : pos+indent+parsed.end])
			c.Descriptor = descriptorFromCall(parsed)
			c.State = StateParsed
			out = append(out, c)

			next := pos + indent + parsed.end
			if nl := strings.IndexByte(body[next:], '\n'); nl >= 0 {
				pos = next + nl + 1
			} else {
				pos = len(body)
			}
		}
	}
	return out
}

// descriptorFromCall maps write('model', ids, values) and
// create('model', values) onto ERP argument order. Missing pieces are left
// out for the gate to reject.
func descriptorFromCall(c *call) *Descriptor {
	d := &Descriptor{Method: c.name, Args: []any{}, Kwargs: map[string]any{}}

	rest := c.args
	if m, ok := c.kwargs["model"].(string); ok {
		d.Model = m
	} else {
		for i, a := range rest {
			if s, ok := a.(string); ok {
				d.Model = s
				rest = append(append([]any{}, rest[:i]...), rest[i+1:]...)
				break
			}
		}
	}

	values, hasValues := c.kwargs["values"]
	if !hasValues {
		for i := len(rest) - 1; i >= 0; i-- {
			if _, ok := rest[i].(map[string]any); ok {
				values, hasValues = rest[i], true
				rest = append(append([]any{}, rest[:i]...), rest[i+1:]...)
				break
			}
		}
	}

	if c.name == "write" {
		ids, hasIDs := c.kwargs["ids"]
		if !hasIDs && len(rest) > 0 {
			ids, hasIDs = rest[0], true
		}
		if !hasIDs {
			return d
		}
		d.Args = append(d.Args, ids)
	}
	if hasValues {
		d.Args = append(d.Args, values)
	}
	return d
}
