package at

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
)

// ScanToken extracts the next logical token from data: either a data
// input prompt or one line terminated by term. The returned advance
// reports how many input bytes the token consumed (including the
// terminator); the token itself carries no terminator.
//
// advance == 0 with a nil token means data holds no complete token yet
// and the caller should supply more bytes.
func ScanToken(data []byte, term, prompt []byte) (advance int, token []byte) {
	if len(prompt) > 0 && bytes.HasPrefix(data, prompt) {
		return len(prompt), data[:len(prompt)]
	}
	if i := bytes.Index(data, term); i >= 0 {
		return i + len(term), data[:i]
	}
	return 0, nil
}

// SplitFunc returns a bufio.SplitFunc that tokenizes an AT response
// stream using the given line terminator and data input prompt, so it
// can be used directly with bufio.Scanner.
//
// When atEOF is set, any remaining unterminated data is returned as the
// final token.
func SplitFunc(term, prompt string) bufio.SplitFunc {
	t, p := []byte(term), []byte(prompt)
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		if atEOF && len(data) == 0 {
			return 0, nil, nil
		}
		if advance, token = ScanToken(data, t, p); token != nil {
			return advance, token, nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}
}

// Splitter tokenizes AT responses with the conventional CRLF terminator
// and "> " prompt.
//
// Important: the splitter assumes "No Echo" mode (ATE0). Command echoes
// are handled one layer up, by the client's echo suppression.
var Splitter = SplitFunc(CRLF, Prompt)

// Classify identifies the nature of one token of modem output. URC
// recognition is not done here: whether a line is unsolicited depends
// on the registered bindings and on whether a command is outstanding,
// which only the client knows.
func Classify(line string) ResponseType {
	if line == Prompt {
		return TypePrompt
	}

	// Direct matches for final results
	switch line {
	case OK, ERROR, Aborted, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	}

	// Prefix matches
	switch {
	case strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	default:
		return TypeData
	}
}

// IsErrorFinal reports whether a final result code indicates failure.
func IsErrorFinal(line string) bool {
	return Classify(line) == TypeFinal && line != OK
}

// ParseDeviceError extracts the numeric cause code from a "+CME ERROR:"
// or "+CMS ERROR:" final result code. Verbose error strings (AT+CMEE=2)
// carry no number; those report a code of -1. ok is false when line is
// not a device error at all.
func ParseDeviceError(line string) (kind ErrorKind, code int, ok bool) {
	switch {
	case strings.HasPrefix(line, CmeError):
		kind = KindCME
		line = line[len(CmeError):]
	case strings.HasPrefix(line, CmsError):
		kind = KindCMS
		line = line[len(CmsError):]
	default:
		return 0, 0, false
	}

	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return kind, -1, true
	}
	return kind, n, true
}
