package optics

// Re-export types from the types sub-package so callers can depend on the
// root package alone

import (
	"github.com/nanoncore/nano-optics/types"
)

// Type aliases for convenience
type (
	Protocol         = types.Protocol
	ConnectionParams = types.ConnectionParams
	ExecResult       = types.ExecResult
	Runner           = types.Runner
	ConnectionTest   = types.ConnectionTest
	OpticsReading    = types.OpticsReading
	Error            = types.Error
	ErrorKind        = types.ErrorKind
)

// Re-export constants
const (
	ProtocolSSH    = types.ProtocolSSH
	ProtocolTelnet = types.ProtocolTelnet

	ErrMissingCredentials = types.ErrMissingCredentials
	ErrInvalidONT         = types.ErrInvalidONT
	ErrSSHParam           = types.ErrSSHParam
	ErrSSHConnection      = types.ErrSSHConnection
	ErrSSHExec            = types.ErrSSHExec
	ErrSSHTimeout         = types.ErrSSHTimeout
	ErrTelnetParam        = types.ErrTelnetParam
	ErrTelnetConnection   = types.ErrTelnetConnection
	ErrTelnetTimeout      = types.ErrTelnetTimeout
	ErrTelnetCommand      = types.ErrTelnetCommand
)
