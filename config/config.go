// Package config loads the process configuration for the optics service.
//
// Values come from built-in defaults, an optional .env file and the process
// environment, in increasing order of priority. Configuration is read once at
// startup and never changes afterwards.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	optics "github.com/nanoncore/nano-optics"
	"github.com/nanoncore/nano-optics/drivers/cli"
	"github.com/nanoncore/nano-optics/types"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPathVariable names the variable holding the .env file location
const EnvPathVariable = "NANO_OPTICS_ENV_PATH"

// Config stores all configuration of the application.
// The values are read by viper from a .env file or environment variables.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Protocol    string `mapstructure:"PROTOCOL"`
	HTTPPort    int    `mapstructure:"HTTP_PORT"`

	// OLT defaults; username and password may also come from requests
	OLTHost       string `mapstructure:"OLT_HOST_DEFAULT"`
	OLTSSHPort    int    `mapstructure:"OLT_SSH_PORT"`
	OLTTelnetPort int    `mapstructure:"OLT_TELNET_PORT"`
	OLTUsername   string `mapstructure:"OLT_USERNAME"`
	OLTPassword   string `mapstructure:"OLT_PASSWORD"`

	// Telnet session
	TelnetUsernamePrompt   string `mapstructure:"TELNET_USERNAME_PROMPT"`
	TelnetPasswordPrompt   string `mapstructure:"TELNET_PASSWORD_PROMPT"`
	TelnetShellPrompt      string `mapstructure:"TELNET_SHELL_PROMPT"`
	TelnetLoginTimeoutMs   int    `mapstructure:"TELNET_LOGIN_TIMEOUT_MS"`
	TelnetCommandTimeoutMs int    `mapstructure:"TELNET_COMMAND_TIMEOUT_MS"`

	// HTTP edge
	APIAuthToken            string `mapstructure:"API_AUTH_TOKEN"`
	LogLevel                string `mapstructure:"LOG_LEVEL"`
	RequestLogging          bool   `mapstructure:"REQUEST_LOGGING"`
	AllowRequestCredentials bool   `mapstructure:"ALLOW_REQUEST_CREDENTIALS"`
	FrontendOrigin          string `mapstructure:"FRONTEND_ORIGIN"`
}

var defaults = map[string]any{
	"ENVIRONMENT":               "development",
	"PROTOCOL":                  "telnet",
	"HTTP_PORT":                 4000,
	"OLT_HOST_DEFAULT":          "",
	"OLT_SSH_PORT":              22,
	"OLT_TELNET_PORT":           23,
	"OLT_USERNAME":              "",
	"OLT_PASSWORD":              "",
	"TELNET_USERNAME_PROMPT":    cli.DefaultUsernamePrompt,
	"TELNET_PASSWORD_PROMPT":    cli.DefaultPasswordPrompt,
	"TELNET_SHELL_PROMPT":       "#",
	"TELNET_LOGIN_TIMEOUT_MS":   8000,
	"TELNET_COMMAND_TIMEOUT_MS": 10000,
	"API_AUTH_TOKEN":            "",
	"LOG_LEVEL":                 "info",
	"REQUEST_LOGGING":           true,
	"ALLOW_REQUEST_CREDENTIALS": false,
	"FRONTEND_ORIGIN":           "http://localhost:3000",
}

// Load reads configuration. envPath is the .env file to merge; an empty path
// means NANO_OPTICS_ENV_PATH or ./.env. A missing file is not an error.
func Load(envPath string) (*Config, error) {
	v := viper.New()

	// 1. Defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// 2. .env file, if present
	if envPath == "" {
		envPath = os.Getenv(EnvPathVariable)
	}
	if envPath == "" {
		envPath = ".env"
	}
	if _, err := os.Stat(envPath); err == nil {
		v.SetConfigFile(envPath)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", envPath, err)
		}
	}

	// 3. Process environment (highest priority)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	cfg.Protocol = strings.ToLower(cfg.Protocol)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	return &cfg, nil
}

var knownLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// Validate returns non-fatal configuration problems. Missing OLT credentials
// are not reported because requests can supply them.
func (c *Config) Validate() []string {
	var problems []string

	if c.OLTHost == "" {
		problems = append(problems, "OLT_HOST_DEFAULT is empty; connections will fail without a host.")
	}
	if c.OLTSSHPort <= 0 {
		problems = append(problems, "OLT_SSH_PORT must be a positive integer.")
	}
	if c.OLTTelnetPort <= 0 {
		problems = append(problems, "OLT_TELNET_PORT must be a positive integer.")
	}
	if c.Protocol != string(types.ProtocolTelnet) && c.Protocol != string(types.ProtocolSSH) {
		problems = append(problems, fmt.Sprintf("PROTOCOL %q is not recognized; supported values are \"telnet\" and \"ssh\".", c.Protocol))
	}
	if c.TelnetLoginTimeoutMs <= 0 {
		problems = append(problems, "TELNET_LOGIN_TIMEOUT_MS must be a positive integer (milliseconds).")
	}
	if c.TelnetCommandTimeoutMs <= 0 {
		problems = append(problems, "TELNET_COMMAND_TIMEOUT_MS must be a positive integer (milliseconds).")
	}
	if !isKnownLogLevel(c.LogLevel) {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL %q is not a recognized level.", c.LogLevel))
	}

	return problems
}

func isKnownLogLevel(level string) bool {
	for _, l := range knownLogLevels {
		if l == level {
			return true
		}
	}
	return false
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Service maps the configuration onto the OLT command service
func (c *Config) Service() optics.Config {
	return optics.Config{
		Protocol: c.Protocol,
		Defaults: optics.Defaults{
			Host:       c.OLTHost,
			SSHPort:    c.OLTSSHPort,
			TelnetPort: c.OLTTelnetPort,
			Username:   c.OLTUsername,
			Password:   c.OLTPassword,
		},
		Telnet: cli.TelnetOptions{
			Prompts: cli.TelnetPrompts{
				Username: c.TelnetUsernamePrompt,
				Password: c.TelnetPasswordPrompt,
				Shell:    c.TelnetShellPrompt,
			},
			LoginTimeout:   time.Duration(c.TelnetLoginTimeoutMs) * time.Millisecond,
			CommandTimeout: time.Duration(c.TelnetCommandTimeoutMs) * time.Millisecond,
		},
	}
}

// NewLogger builds the JSON application logger. Unknown levels log at info.
func (c *Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(parseLevel(c.LogLevel))
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.InitialFields = map[string]any{
		"service": "nano-optics",
		"env":     c.Environment,
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "trace":
		return zapcore.DebugLevel
	case "fatal":
		return zapcore.FatalLevel
	}
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}
