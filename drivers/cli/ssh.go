package cli

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/nanoncore/nano-optics/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

const (
	// DefaultSSHPort is used when the caller supplies no port
	DefaultSSHPort = 22

	// DefaultSSHTimeout bounds a run when the caller supplies no timeout
	DefaultSSHTimeout = 10 * time.Second
)

// DialContextFunc opens the raw TCP connection for a session
type DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)

// SSHRunner executes one command per call over a fresh SSH connection
type SSHRunner struct {
	logger *zap.Logger
	dial   DialContextFunc
}

// SSHOption customizes an SSHRunner
type SSHOption func(*SSHRunner)

// WithSSHDialer replaces the TCP dialer (used by tests)
func WithSSHDialer(dial DialContextFunc) SSHOption {
	return func(r *SSHRunner) {
		r.dial = dial
	}
}

// NewSSHRunner creates a new SSH session runner
func NewSSHRunner(logger *zap.Logger, opts ...SSHOption) *SSHRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &SSHRunner{logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	if r.dial == nil {
		var d net.Dialer
		r.dial = d.DialContext
	}
	return r
}

// connHolder owns the raw connection so a timeout can destroy it mid-handshake
type connHolder struct {
	mu        sync.Mutex
	conn      net.Conn
	destroyed bool
}

// set records conn; it returns false and closes conn when the run already timed out
func (h *connHolder) set(conn net.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		_ = conn.Close()
		return false
	}
	h.conn = conn
	return true
}

func (h *connHolder) destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed = true
	if h.conn != nil {
		_ = h.conn.Close()
	}
}

// Run executes command on the OLT and waits for the channel to close.
// A timer armed at call start races the session; whichever fires first wins
// and the connection is destroyed when the timer wins.
func (r *SSHRunner) Run(ctx context.Context, params types.ConnectionParams, command string, timeout time.Duration) (*types.ExecResult, error) {
	if params.Host == "" || params.Username == "" || params.Password == "" || command == "" {
		return nil, types.NewError(types.ErrSSHParam, "missing required SSH parameters: host, username, password, command", nil)
	}
	if params.Port <= 0 {
		params.Port = DefaultSSHPort
	}
	if timeout <= 0 {
		timeout = DefaultSSHTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l := newLatch()
	holder := &connHolder{}
	go r.execute(ctx, params, command, timeout, l, holder)

	select {
	case o := <-l.done():
		return o.result, o.err
	case <-ctx.Done():
		if l.settle(outcome{err: types.NewError(types.ErrSSHTimeout, "SSH command timed out", ctx.Err())}) {
			holder.destroy()
			r.logger.Warn("SSH command timed out; connection destroyed",
				append(paramFields(params), zap.Duration("timeout", timeout))...)
		}
		o := <-l.done()
		return o.result, o.err
	}
}

// execute runs the connect/exec/close sequence and settles the latch
func (r *SSHRunner) execute(ctx context.Context, params types.ConnectionParams, command string, timeout time.Duration, l *latch, holder *connHolder) {
	fail := func(kind types.ErrorKind, msg string, err error) {
		if l.settle(outcome{err: types.NewError(kind, msg, err)}) {
			r.logger.Error(msg, append(paramFields(params), zap.String("code", string(kind)), zap.Error(err))...)
		}
	}

	address := params.Address()
	conn, err := r.dial(ctx, "tcp", address)
	if err != nil {
		fail(types.ErrSSHConnection, "failed to dial SSH", err)
		return
	}
	if !holder.set(conn) {
		return
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, address, r.clientConfig(params, timeout))
	if err != nil {
		_ = conn.Close()
		fail(types.ErrSSHConnection, "SSH handshake failed", err)
		return
	}
	client := ssh.NewClient(c, chans, reqs)
	defer client.Close()

	r.logger.Debug("SSH connection ready; executing command on OLT", paramFields(params)...)

	session, err := client.NewSession()
	if err != nil {
		fail(types.ErrSSHExec, "failed to open SSH channel", err)
		return
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Start(command); err != nil {
		fail(types.ErrSSHExec, "failed to execute SSH command", err)
		return
	}

	result := &types.ExecResult{}
	err = session.Wait()

	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case err == nil:
		code := 0
		result.ExitCode = &code
	case errors.As(err, &exitErr):
		code := exitErr.ExitStatus()
		result.ExitCode = &code
		if sig := exitErr.Signal(); sig != "" {
			result.Signal = &sig
		}
	case errors.As(err, &missingErr):
		// no exit-status from the server; code stays nil
	default:
		fail(types.ErrSSHExec, "SSH channel closed unexpectedly", err)
		return
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	l.settle(outcome{result: result})
}

// clientConfig builds the SSH client configuration.
// Some OLTs require keyboard-interactive instead of password auth.
func (r *SSHRunner) clientConfig(params types.ConnectionParams, timeout time.Duration) *ssh.ClientConfig {
	keyboardInteractive := ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = params.Password
		}
		return answers, nil
	})

	return &ssh.ClientConfig{
		User: params.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(params.Password),
			keyboardInteractive,
		},
		Timeout:         timeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // OLT management plane, no known_hosts
	}
}

// paramFields returns log fields for a session. The password is never included.
func paramFields(params types.ConnectionParams) []zap.Field {
	return []zap.Field{
		zap.String("host", params.Host),
		zap.Int("port", params.Port),
		zap.String("username", params.Username),
	}
}
