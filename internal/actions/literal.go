package actions

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// A strict grammar for calls found in code blocks:
//
//	call    = ident "(" [ arg { "," arg } [ "," ] ] ")"
//	arg     = [ ident "=" ] literal
//	literal = string | number | "True" | "False" | "None"
//	        | "[" items "]" | "(" items ")" | "{" pairs "}"
//
// Anything else, including names and expressions, is a syntax error.

type call struct {
	name   string
	args   []any
	kwargs map[string]any
	end    int
}

type syntaxError struct {
	pos int
	msg string
}

func (e *syntaxError) Error() string { return fmt.Sprintf("offset %d: %s", e.pos, e.msg) }

var errUnterminated = errors.New("unterminated input")

type literalParser struct {
	src string
	pos int
}

// parseCall parses one call starting at the beginning of src. Text after the
// closing parenthesis is ignored; call.end is its offset.
func parseCall(src string) (*call, error) {
	p := &literalParser{src: src}
	p.skipSpace()

	name := p.ident()
	if name == "" {
		return nil, p.fail("expected call name")
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}

	c := &call{name: name, kwargs: map[string]any{}}
	for {
		p.skipSpace()
		if p.peek() == ')' {
			p.pos++
			break
		}

		// keyword argument?
		save := p.pos
		if kw := p.ident(); kw != "" && !isConstant(kw) {
			p.skipSpace()
			if p.peek() != '=' {
				return nil, p.fail("bare name " + strconv.Quote(kw))
			}
			p.pos++
			v, err := p.literal()
			if err != nil {
				return nil, err
			}
			if _, dup := c.kwargs[kw]; dup {
				return nil, p.fail("repeated keyword " + strconv.Quote(kw))
			}
			c.kwargs[kw] = v
		} else {
			p.pos = save
			if len(c.kwargs) > 0 {
				return nil, p.fail("positional argument after keyword argument")
			}
			v, err := p.literal()
			if err != nil {
				return nil, err
			}
			c.args = append(c.args, v)
		}

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
		default:
			return nil, p.fail("expected ',' or ')'")
		}
	}
	c.end = p.pos
	return c, nil
}

func (p *literalParser) literal() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, errUnterminated
	}

	switch ch := p.src[p.pos]; {
	case ch == '\'' || ch == '"':
		return p.str()
	case ch == '[':
		p.pos++
		return p.items(']')
	case ch == '(':
		p.pos++
		return p.items(')')
	case ch == '{':
		p.pos++
		return p.dict()
	case ch == '-' || ch == '+' || isDigit(ch):
		return p.number()
	}

	switch word := p.ident(); word {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	case "":
		return nil, p.fail("unexpected character " + strconv.QuoteRune(rune(p.src[p.pos])))
	default:
		return nil, p.fail("bare name " + strconv.Quote(word))
	}
}

func (p *literalParser) items(closer byte) ([]any, error) {
	out := []any{}
	for {
		p.skipSpace()
		if p.peek() == closer {
			p.pos++
			return out, nil
		}
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		out = append(out, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closer:
		default:
			return nil, p.fail(fmt.Sprintf("expected ',' or %q", closer))
		}
	}
}

func (p *literalParser) dict() (map[string]any, error) {
	out := map[string]any{}
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return out, nil
		}
		if c := p.peek(); c != '\'' && c != '"' {
			return nil, p.fail("dict keys must be strings")
		}
		key, err := p.str()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		v, err := p.literal()
		if err != nil {
			return nil, err
		}
		out[key] = v

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, p.fail("expected ',' or '}'")
		}
	}
}

func (p *literalParser) str() (string, error) {
	quote := p.src[p.pos]
	p.pos++

	var b strings.Builder
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		switch {
		case ch == quote:
			p.pos++
			return b.String(), nil
		case ch == '\n':
			return "", p.fail("newline in string")
		case ch == '\\':
			if p.pos+1 >= len(p.src) {
				return "", errUnterminated
			}
			p.pos++
			switch esc := p.src[p.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(esc)
			default:
				return "", p.fail("unknown escape \\" + string(esc))
			}
			p.pos++
		default:
			b.WriteByte(ch)
			p.pos++
		}
	}
	return "", errUnterminated
}

func (p *literalParser) number() (any, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	float := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if isDigit(c) {
			p.pos++
			continue
		}
		if c == '.' || c == 'e' || c == 'E' {
			float = true
			p.pos++
			if (c == 'e' || c == 'E') && (p.peek() == '-' || p.peek() == '+') {
				p.pos++
			}
			continue
		}
		break
	}

	text := p.src[start:p.pos]
	if float {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, &syntaxError{pos: start, msg: "bad number " + strconv.Quote(text)}
		}
		return f, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, &syntaxError{pos: start, msg: "bad number " + strconv.Quote(text)}
	}
	return n, nil
}

func (p *literalParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || p.pos > start && isDigit(c) {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *literalParser) expect(ch byte) error {
	p.skipSpace()
	if p.peek() != ch {
		return p.fail(fmt.Sprintf("expected %q", ch))
	}
	p.pos++
	return nil
}

func (p *literalParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) fail(msg string) error {
	if p.pos >= len(p.src) {
		return errUnterminated
	}
	return &syntaxError{pos: p.pos, msg: msg}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isConstant(word string) bool {
	return word == "True" || word == "False" || word == "None"
}
