package optics

import (
	"context"
	"strings"
	"time"

	"github.com/nanoncore/nano-optics/drivers/cli"
	"github.com/nanoncore/nano-optics/types"
	"github.com/nanoncore/nano-optics/vendors/nokia"
	"go.uber.org/zap"
)

const (
	// DefaultSSHTestTimeout bounds the SSH connectivity probe
	DefaultSSHTestTimeout = 8 * time.Second

	// DefaultSSHCommandTimeout bounds the SSH optics query
	DefaultSSHCommandTimeout = 10 * time.Second
)

// Config is the immutable service configuration, read once at start
type Config struct {
	// Protocol is the raw configured value; anything but "ssh" means Telnet
	Protocol string

	Defaults Defaults

	Telnet cli.TelnetOptions

	SSHTestTimeout    time.Duration
	SSHCommandTimeout time.Duration
}

// Service resolves credentials, picks the transport, runs the OLT command and
// shapes the result
type Service struct {
	protocol types.Protocol
	defaults Defaults
	cfg      Config
	cache    *ConnectionCache
	runner   types.Runner
	adapter  *nokia.Adapter
	logger   *zap.Logger
	now      func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithRunner replaces the transport selected from the protocol
func WithRunner(runner types.Runner) Option {
	return func(s *Service) {
		s.runner = runner
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock replaces time.Now for ObservedAt stamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the OLT command service. cache is owned by the caller
// and lives as long as the process; a nil cache gets a fresh one.
func NewService(cfg Config, cache *ConnectionCache, opts ...Option) *Service {
	if cfg.SSHTestTimeout <= 0 {
		cfg.SSHTestTimeout = DefaultSSHTestTimeout
	}
	if cfg.SSHCommandTimeout <= 0 {
		cfg.SSHCommandTimeout = DefaultSSHCommandTimeout
	}
	if cache == nil {
		cache = NewConnectionCache()
	}

	s := &Service{
		protocol: SelectProtocol(cfg.Protocol),
		defaults: cfg.Defaults,
		cfg:      cfg,
		cache:    cache,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.runner == nil {
		s.runner = NewRunner(s.protocol, RunnerConfig{Telnet: cfg.Telnet, Logger: s.logger})
	}
	s.adapter = nokia.NewAdapter(s.runner)

	return s
}

// Protocol returns the active transport
func (s *Service) Protocol() types.Protocol {
	return s.protocol
}

// TestConnection runs a harmless command to verify the OLT is reachable with
// the resolved credentials. Output is returned unparsed.
func (s *Service) TestConnection(ctx context.Context, overrides Overrides) (*types.ConnectionTest, error) {
	creds, err := Resolve(overrides, s.cache, s.defaults, s.protocol)
	if err != nil {
		return nil, err
	}

	result, err := s.adapter.ShowVersion(ctx, creds, s.timeout(s.cfg.SSHTestTimeout))
	if err != nil {
		return nil, err
	}

	s.logger.Info("OLT connection test successful", connFields(s.protocol, creds)...)

	return &types.ConnectionTest{
		OK:       true,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
		Host:     creds.Host,
		Port:     creds.Port,
		Username: creds.Username,
		Protocol: s.protocol,
	}, nil
}

// GetONTOptics reads the optics of one ONT and extracts the RX level.
// A nil RxDBm means the device answered without a dBm value.
func (s *Service) GetONTOptics(ctx context.Context, ontPath string, overrides Overrides) (*types.OpticsReading, error) {
	trimmed := strings.TrimSpace(ontPath)
	if err := types.ValidateONTPath(trimmed); err != nil {
		return nil, err
	}

	creds, err := Resolve(overrides, s.cache, s.defaults, s.protocol)
	if err != nil {
		return nil, err
	}

	optics, err := s.adapter.GetONTOptics(ctx, creds, trimmed, s.timeout(s.cfg.SSHCommandTimeout))
	if err != nil {
		return nil, err
	}

	reading := &types.OpticsReading{
		ONTPath:    trimmed,
		RxDBm:      optics.RxDBm,
		Raw:        optics.Raw,
		ObservedAt: s.now().UTC(),
		ExitCode:   optics.Result.ExitCode,
	}

	s.logger.Info("Fetched ONT optics from OLT",
		append(connFields(s.protocol, creds),
			zap.String("ontPath", trimmed),
			zap.Float64p("rxDbm", reading.RxDBm),
			zap.Intp("exitCode", reading.ExitCode))...)
	s.logger.Debug("ONT optics raw output", zap.String("ontPath", trimmed), zap.String("raw", reading.Raw))

	return reading, nil
}

// CacheConnection overwrites the single cached connection slot
func (s *Service) CacheConnection(params types.ConnectionParams) {
	s.cache.Store(params)
}

// timeout picks the per-call budget for the active transport.
// Telnet always uses its configured command timeout.
func (s *Service) timeout(ssh time.Duration) time.Duration {
	if s.protocol == types.ProtocolSSH {
		return ssh
	}
	return s.cfg.Telnet.CommandTimeout
}

func connFields(protocol types.Protocol, params types.ConnectionParams) []zap.Field {
	return []zap.Field{
		zap.String("protocol", string(protocol)),
		zap.String("host", params.Host),
		zap.Int("port", params.Port),
		zap.String("username", params.Username),
	}
}
