// Package at implements the lexical layer of the AT command protocol:
// splitting a raw modem byte stream into logical tokens, classifying
// tokens as final result codes, information responses or prompts, and
// scanning parameters out of an information response line.
//
// The package is intentionally free of I/O and state. The stateful
// command/response coordination lives in package atclient.
package at

const (
	// Terminal Control
	CRLF              = "\r\n"
	CommandTerminator = "\r"
	Prompt            = "> "

	// Final Result Codes
	OK         = "OK"
	ERROR      = "ERROR"
	Aborted    = "ABORTED"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// Common Commands
	CmdAt            = "AT"
	CmdEchoOff       = "ATE0"
	CmdVerboseErrors = "AT+CMEE=1"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR, +CME ERROR ...
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // Data input prompt
)

// ErrorKind distinguishes the two families of device-reported errors.
type ErrorKind int

const (
	KindCME ErrorKind = iota // mobile equipment errors
	KindCMS                  // message service errors
)

func (k ErrorKind) String() string {
	if k == KindCMS {
		return "CMS"
	}
	return "CME"
}
