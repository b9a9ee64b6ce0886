package at

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNoParameter is returned when a parameter is requested past the end
// of an information response line.
var ErrNoParameter = errors.New("no more parameters in response line")

// Params scans the comma-separated parameters of one information
// response line, e.g. `+COPS: 0,0,"vodafone",7`. Quoted strings may
// contain commas and are returned without their quotes.
type Params struct {
	rest string
	done bool
}

// NewParams prepares a parameter scanner for line. A leading
// `+<CMD>: ` information response prefix, when present, is skipped.
func NewParams(line string) *Params {
	if strings.HasPrefix(line, "+") {
		if i := strings.Index(line, ":"); i >= 0 {
			line = line[i+1:]
		}
	}
	return &Params{rest: strings.TrimLeft(line, " ")}
}

// Next returns the next parameter. Surrounding whitespace is trimmed
// and enclosing double quotes are removed.
func (p *Params) Next() (string, error) {
	if p.done {
		return "", ErrNoParameter
	}

	var field string
	if strings.HasPrefix(p.rest, `"`) {
		end := strings.Index(p.rest[1:], `"`)
		if end < 0 {
			// Unterminated quote: take everything.
			field = p.rest[1:]
			p.rest = ""
			p.done = true
			return field, nil
		}
		field = p.rest[1 : 1+end]
		p.rest = p.rest[2+end:]
		if i := strings.Index(p.rest, ","); i >= 0 {
			p.rest = p.rest[i+1:]
		} else {
			p.done = true
		}
		return field, nil
	}

	if i := strings.Index(p.rest, ","); i >= 0 {
		field, p.rest = p.rest[:i], p.rest[i+1:]
	} else {
		field, p.rest = p.rest, ""
		p.done = true
	}
	return strings.TrimSpace(field), nil
}

// NextInt returns the next parameter parsed as a decimal integer.
func (p *Params) NextInt() (int, error) {
	s, err := p.Next()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("parameter is not an integer: " + strconv.Quote(s))
	}
	return n, nil
}

// Rest returns the unconsumed remainder of the line verbatim.
func (p *Params) Rest() string {
	if p.done {
		return ""
	}
	return p.rest
}
