package optics

import (
	"github.com/nanoncore/nano-optics/types"
)

// Overrides are request-supplied connection values; zero values mean unset
type Overrides struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Defaults are the process-level fallbacks read from configuration
type Defaults struct {
	Host       string
	SSHPort    int
	TelnetPort int
	Username   string
	Password   string
}

// port returns the default port for protocol
func (d Defaults) port(protocol types.Protocol) int {
	if protocol == types.ProtocolSSH {
		return d.SSHPort
	}
	return d.TelnetPort
}

// Resolve merges overrides, the cached connection and defaults field by field,
// in that order of precedence. Host, username and password are required;
// port always has a fallback.
func Resolve(overrides Overrides, cache *ConnectionCache, defaults Defaults, protocol types.Protocol) (types.ConnectionParams, error) {
	cached, _ := cache.Load()

	params := types.ConnectionParams{
		Host:     firstString(overrides.Host, cached.Host, defaults.Host),
		Port:     firstPort(overrides.Port, cached.Port, defaults.port(protocol)),
		Username: firstString(overrides.Username, cached.Username, defaults.Username),
		Password: firstString(overrides.Password, cached.Password, defaults.Password),
	}

	if params.Host == "" || params.Username == "" || params.Password == "" {
		return types.ConnectionParams{}, types.NewError(types.ErrMissingCredentials,
			"missing OLT credentials (host, username, password); provide them in the request or via environment", nil)
	}

	return params, nil
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPort(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
