package types

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Protocol represents the transport used to reach the OLT CLI
type Protocol string

const (
	ProtocolSSH    Protocol = "ssh"
	ProtocolTelnet Protocol = "telnet"
)

// ParseProtocol maps a configured protocol value to a transport.
// Only "ssh" (any case) selects SSH; every other value, including the empty
// string, selects Telnet.
func ParseProtocol(value string) Protocol {
	if strings.EqualFold(value, string(ProtocolSSH)) {
		return ProtocolSSH
	}
	return ProtocolTelnet
}

// ConnectionParams contains everything needed to open one CLI session
type ConnectionParams struct {
	// Host is the management IP/hostname of the OLT
	Host string

	// Port is the management port
	Port int

	// Username for authentication
	Username string

	// Password for authentication. Never logged or rendered.
	Password string
}

// Address returns host:port for dialing
func (p ConnectionParams) Address() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// String renders the parameters without the password
func (p ConnectionParams) String() string {
	return fmt.Sprintf("%s@%s", p.Username, p.Address())
}

// ExecResult is the outcome of exactly one command run on the OLT
type ExecResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// ExitCode is nil when the transport reported no exit status
	ExitCode *int `json:"exitCode"`

	// Signal is set when the remote command was terminated by a signal
	Signal *string `json:"signal"`
}

// Runner executes a single command against the OLT over one fresh session.
// The timeout bounds the command phase; transports with a separate login
// phase keep their own login budget.
type Runner interface {
	Run(ctx context.Context, params ConnectionParams, command string, timeout time.Duration) (*ExecResult, error)
}

// ConnectionTest is the result of a connectivity check
type ConnectionTest struct {
	OK       bool     `json:"ok"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Protocol Protocol `json:"protocol"`
}

// OpticsReading is the parsed optics telemetry for one ONT
type OpticsReading struct {
	// ONTPath is the shelf/slot/pon/ont/x path that was queried
	ONTPath string `json:"ontPath"`

	// RxDBm is nil when the output carried no dBm value
	RxDBm *float64 `json:"rxDbm"`

	// Raw is the unparsed device output
	Raw string `json:"raw"`

	ObservedAt time.Time `json:"at"`

	ExitCode *int `json:"exitCode"`
}

var ontPathPattern = regexp.MustCompile(`^\d+/\d+/\d+/\d+/\d+$`)

// ValidateONTPath checks the shelf/slot/pon/ont/x shape (e.g. 1/1/3/2/1).
// Ranges are not checked.
func ValidateONTPath(path string) error {
	if path == "" {
		return NewError(ErrInvalidONT, "ONT path is required (e.g. 1/1/3/2/1)", nil)
	}
	if !ontPathPattern.MatchString(path) {
		return NewError(ErrInvalidONT, "ONT path must match pattern shelf/slot/pon/ont/x (e.g. 1/1/3/2/1)", nil)
	}
	return nil
}

// IsONTPath reports whether path has the shelf/slot/pon/ont/x shape
func IsONTPath(path string) bool {
	return ontPathPattern.MatchString(path)
}
