package optics

import (
	"github.com/nanoncore/nano-optics/drivers/cli"
	"github.com/nanoncore/nano-optics/types"
	"go.uber.org/zap"
)

// RunnerConfig carries what the transport runners need
type RunnerConfig struct {
	// Telnet holds prompts and login/command timeouts for Telnet sessions
	Telnet cli.TelnetOptions

	Logger *zap.Logger
}

// SelectProtocol maps a configured protocol value to a transport
func SelectProtocol(configured string) Protocol {
	return types.ParseProtocol(configured)
}

// NewRunner creates the session runner for protocol
func NewRunner(protocol Protocol, cfg RunnerConfig) Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch protocol {
	case ProtocolSSH:
		return cli.NewSSHRunner(logger.Named("ssh"))
	default:
		return cli.NewTelnetRunner(logger.Named("telnet"), cfg.Telnet)
	}
}

// GetSupportedProtocols returns the transports this module can drive
func GetSupportedProtocols() []Protocol {
	return []Protocol{ProtocolSSH, ProtocolTelnet}
}
