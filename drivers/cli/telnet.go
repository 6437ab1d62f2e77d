package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nanoncore/nano-optics/types"
	"github.com/ziutek/telnet"
	"go.uber.org/zap"
)

const (
	// DefaultTelnetPort is used when the caller supplies no port
	DefaultTelnetPort = 23

	DefaultLoginTimeout   = 8 * time.Second
	DefaultCommandTimeout = 10 * time.Second

	// DefaultLineTerminator ends every line sent to the device
	DefaultLineTerminator = "\r\n"

	DefaultUsernamePrompt = `login:`
	DefaultPasswordPrompt = `Password:`
	DefaultShellPrompt    = `(?m)[#>]\s*$`
)

// TelnetPrompts holds the prompt patterns matched during a session.
// Each value is a regular expression; empty or invalid values fall back to
// the defaults.
type TelnetPrompts struct {
	Username string
	Password string
	Shell    string
}

// TelnetOptions controls one Telnet session
type TelnetOptions struct {
	Prompts TelnetPrompts

	// LoginTimeout bounds dial + username + password + first shell prompt
	LoginTimeout time.Duration

	// CommandTimeout bounds the wait for the shell prompt after the command
	CommandTimeout time.Duration

	LineTerminator string

	// MaxCapture bounds buffered output per phase
	MaxCapture int
}

func (o TelnetOptions) withDefaults() TelnetOptions {
	if o.LoginTimeout <= 0 {
		o.LoginTimeout = DefaultLoginTimeout
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.LineTerminator == "" {
		o.LineTerminator = DefaultLineTerminator
	}
	if o.MaxCapture <= 0 {
		o.MaxCapture = DefaultMaxCapture
	}
	return o
}

type compiledPrompts struct {
	username *regexp.Regexp
	password *regexp.Regexp
	shell    *regexp.Regexp
}

func (p TelnetPrompts) compile() compiledPrompts {
	return compiledPrompts{
		username: promptPattern(p.Username, DefaultUsernamePrompt),
		password: promptPattern(p.Password, DefaultPasswordPrompt),
		shell:    promptPattern(p.Shell, DefaultShellPrompt),
	}
}

// promptPattern compiles value, falling back when it is empty or invalid
func promptPattern(value, fallback string) *regexp.Regexp {
	if value != "" {
		if re, err := regexp.Compile(value); err == nil {
			return re
		}
	}
	return regexp.MustCompile(fallback)
}

// TelnetDialFunc opens a Telnet byte stream
type TelnetDialFunc func(network, address string, timeout time.Duration) (io.ReadWriteCloser, error)

func dialTelnet(network, address string, timeout time.Duration) (io.ReadWriteCloser, error) {
	conn, err := telnet.DialTimeout(network, address, timeout)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SessionState is a step of the Telnet login/command state machine
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAwaitUsername
	StateAwaitPassword
	StateShellReady
	StateExecuting
	StateCompleted
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitUsername:
		return "authenticating(username)"
	case StateAwaitPassword:
		return "authenticating(password)"
	case StateShellReady:
		return "shell-ready"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TelnetRunner executes one command per call over a fresh Telnet session
type TelnetRunner struct {
	logger  *zap.Logger
	options TelnetOptions
	dial    TelnetDialFunc
}

// TelnetOption customizes a TelnetRunner
type TelnetOption func(*TelnetRunner)

// WithTelnetDialer replaces the Telnet dialer (used by tests)
func WithTelnetDialer(dial TelnetDialFunc) TelnetOption {
	return func(r *TelnetRunner) {
		r.dial = dial
	}
}

// NewTelnetRunner creates a Telnet session runner with default session options
func NewTelnetRunner(logger *zap.Logger, options TelnetOptions, opts ...TelnetOption) *TelnetRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &TelnetRunner{
		logger:  logger,
		options: options,
		dial:    dialTelnet,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run implements types.Runner. A positive timeout replaces the configured
// command timeout; the login timeout always comes from the runner options.
func (r *TelnetRunner) Run(ctx context.Context, params types.ConnectionParams, command string, timeout time.Duration) (*types.ExecResult, error) {
	opts := r.options
	if timeout > 0 {
		opts.CommandTimeout = timeout
	}
	return r.RunSession(ctx, params, command, opts)
}

// RunSession logs in, runs command once and tears the session down.
// Output is combined (Telnet has no stderr) and the exit code is always 0 on
// success since the protocol carries no exit status.
func (r *TelnetRunner) RunSession(ctx context.Context, params types.ConnectionParams, command string, opts TelnetOptions) (*types.ExecResult, error) {
	if params.Host == "" || params.Username == "" || params.Password == "" || command == "" {
		return nil, types.NewError(types.ErrTelnetParam, "missing required Telnet parameters: host, username, password, command", nil)
	}
	if params.Port <= 0 {
		params.Port = DefaultTelnetPort
	}
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.LoginTimeout+opts.CommandTimeout)
	defer cancel()

	s := &telnetSession{
		runner:  r,
		params:  params,
		command: command,
		opts:    opts,
		prompts: opts.Prompts.compile(),
	}

	r.logger.Debug("Opening Telnet connection to OLT", paramFields(params)...)

	l := newLatch()
	go func() {
		result, err := s.run()
		l.settle(outcome{result: result, err: err})
	}()

	var o outcome
	select {
	case o = <-l.done():
	case <-ctx.Done():
		l.settle(outcome{err: s.watchdogError(ctx.Err())})
		o = <-l.done()
	}

	// Teardown failures never replace the outcome
	s.teardown()

	if o.err != nil {
		s.state.Store(int32(StateFailed))
		r.logger.Error("Telnet error while communicating with OLT",
			append(paramFields(params),
				zap.String("code", string(types.KindOf(o.err))),
				zap.Error(o.err))...)
		return nil, o.err
	}

	r.logger.Debug("Telnet command executed successfully on OLT",
		append(paramFields(params), zap.String("commandSnippet", snippet(command, 80)))...)
	return o.result, nil
}

// telnetSession is the state of one RunSession call
type telnetSession struct {
	runner  *TelnetRunner
	params  types.ConnectionParams
	command string
	opts    TelnetOptions
	prompts compiledPrompts
	state   atomic.Int32

	mu       sync.Mutex
	conn     io.ReadWriteCloser
	expecter *ExpectSession
	closed   bool
}

func (s *telnetSession) setState(state SessionState) {
	s.state.Store(int32(state))
}

func (s *telnetSession) currentState() SessionState {
	return SessionState(s.state.Load())
}

// run drives Connecting -> ... -> Completed
func (s *telnetSession) run() (*types.ExecResult, error) {
	loginDeadline := time.Now().Add(s.opts.LoginTimeout)

	s.setState(StateConnecting)
	conn, err := s.runner.dial("tcp", s.params.Address(), s.opts.LoginTimeout)
	if err != nil {
		return nil, types.NewError(types.ErrTelnetConnection, "failed to connect to OLT over Telnet", err)
	}
	if !s.attachConn(conn) {
		return nil, types.NewError(types.ErrTelnetConnection, "session closed while connecting", errSessionClosed)
	}

	exp, err := NewExpectSession(ExpectSessionConfig{
		Conn:       conn,
		Timeout:    s.opts.CommandTimeout,
		MaxCapture: s.opts.MaxCapture,
	})
	if err != nil {
		return nil, types.NewError(types.ErrTelnetConnection, "failed to start Telnet session", err)
	}
	if !s.attachExpecter(exp) {
		return nil, types.NewError(types.ErrTelnetConnection, "session closed while connecting", errSessionClosed)
	}

	s.setState(StateAwaitUsername)
	if err := s.answer(exp, s.prompts.username, s.params.Username, loginDeadline); err != nil {
		return nil, types.NewError(types.ErrTelnetConnection, "username prompt not answered", err)
	}

	s.setState(StateAwaitPassword)
	if err := s.answer(exp, s.prompts.password, s.params.Password, loginDeadline); err != nil {
		return nil, types.NewError(types.ErrTelnetConnection, "password prompt not answered", err)
	}

	if _, _, err := exp.ExpectUntil(s.prompts.shell, loginDeadline); err != nil {
		return nil, types.NewError(types.ErrTelnetConnection, "shell prompt not reached after login", err)
	}
	s.setState(StateShellReady)

	s.runner.logger.Debug("Telnet connection established; executing command on OLT", paramFields(s.params)...)

	s.setState(StateExecuting)
	exp.ResetCapture()
	if err := exp.Send(s.command + s.opts.LineTerminator); err != nil {
		return nil, types.NewError(types.ErrTelnetCommand, "failed to send command", err)
	}

	out, _, err := exp.ExpectUntil(s.prompts.shell, time.Now().Add(s.opts.CommandTimeout))
	if err != nil {
		if errors.Is(err, errPhaseTimeout) {
			return nil, types.NewError(types.ErrTelnetTimeout, "Telnet command timed out", err)
		}
		return nil, types.NewError(types.ErrTelnetCommand, "Telnet command failed", err)
	}

	s.setState(StateCompleted)
	code := 0
	return &types.ExecResult{
		Stdout:   cleanOutput(out, s.command, s.prompts.shell),
		Stderr:   "",
		ExitCode: &code,
	}, nil
}

// answer waits for prompt then sends value followed by the line terminator
func (s *telnetSession) answer(exp *ExpectSession, prompt *regexp.Regexp, value string, deadline time.Time) error {
	if _, _, err := exp.ExpectUntil(prompt, deadline); err != nil {
		return err
	}
	return exp.Send(value + s.opts.LineTerminator)
}

// watchdogError classifies an overall deadline by how far the session got
func (s *telnetSession) watchdogError(cause error) error {
	if s.currentState() < StateShellReady {
		return types.NewError(types.ErrTelnetConnection, "Telnet login timed out", cause)
	}
	return types.NewError(types.ErrTelnetTimeout, "Telnet command timed out", cause)
}

func (s *telnetSession) attachConn(conn io.ReadWriteCloser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = conn.Close()
		return false
	}
	s.conn = conn
	return true
}

func (s *telnetSession) attachExpecter(exp *ExpectSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = exp.Close()
		return false
	}
	s.expecter = exp
	return true
}

// teardown releases the session; errors are intentionally discarded
func (s *telnetSession) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.expecter != nil {
		_ = s.expecter.Close()
		return
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
