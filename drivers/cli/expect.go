package cli

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	expect "github.com/google/goexpect"
	"github.com/nanoncore/nano-optics/vendors/common"
)

// DefaultMaxCapture bounds the bytes buffered while waiting for a prompt
const DefaultMaxCapture = 1024 * 1024

var (
	errCaptureOverflow = errors.New("output exceeded maximum capture size")
	errSessionClosed   = errors.New("expect session closed")
	errPhaseTimeout    = errors.New("deadline reached before prompt")
)

// ExpectSession wraps google/goexpect around a raw CLI byte stream
type ExpectSession struct {
	expecter  *expect.GExpect
	conn      io.ReadWriteCloser
	in        *sessionWriter
	capture   *captureReader
	done      chan struct{}
	closeOnce sync.Once
	expOnce   sync.Once
}

// ExpectSessionConfig holds configuration for creating an expect session
type ExpectSessionConfig struct {
	Conn       io.ReadWriteCloser
	Timeout    time.Duration
	MaxCapture int
}

// NewExpectSession spawns an expecter over cfg.Conn
func NewExpectSession(cfg ExpectSessionConfig) (*ExpectSession, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxCapture <= 0 {
		cfg.MaxCapture = DefaultMaxCapture
	}

	s := &ExpectSession{
		conn: cfg.Conn,
		done: make(chan struct{}),
	}
	s.capture = &captureReader{r: cfg.Conn, limit: int64(cfg.MaxCapture), onClose: s.closeConn}
	s.in = &sessionWriter{w: cfg.Conn, onErr: s.closeConn}

	exp, _, err := expect.SpawnGeneric(&expect.GenOptions{
		In:  s.in,
		Out: s.capture,
		Wait: func() error {
			<-s.done
			return nil
		},
		Close: s.closeConn,
		Check: s.alive,
	}, cfg.Timeout,
		expect.Verbose(false),
		expect.PartialMatch(true),
		expect.CheckDuration(100*time.Millisecond),
	)
	if err != nil {
		_ = s.closeConn()
		return nil, fmt.Errorf("failed to spawn expect session: %w", err)
	}

	s.expecter = exp
	return s, nil
}

// Send writes text to the device as-is, straight to the connection.
// After Close it returns errSessionClosed.
func (s *ExpectSession) Send(text string) error {
	if !s.alive() {
		return errSessionClosed
	}
	if _, err := s.in.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}
	return nil
}

// ExpectUntil waits for re to match the incoming stream before deadline.
// It returns everything received up to and including the match.
func (s *ExpectSession) ExpectUntil(re *regexp.Regexp, deadline time.Time) (string, []string, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return "", nil, errPhaseTimeout
	}
	out, match, err := s.expecter.Expect(re, remaining)
	if err != nil {
		if s.capture.overflowed() {
			return out, match, errCaptureOverflow
		}
		if isExpectTimeout(err) || !time.Now().Before(deadline) {
			return out, match, fmt.Errorf("%w: %v", errPhaseTimeout, err)
		}
		return out, match, err
	}
	return out, match, nil
}

// ResetCapture restarts the capture budget, e.g. before a command is sent
func (s *ExpectSession) ResetCapture() {
	s.capture.reset()
}

// Close closes the expecter and the underlying connection. It is safe to
// call more than once.
func (s *ExpectSession) Close() error {
	err := s.closeConn()
	s.expOnce.Do(func() {
		if s.expecter != nil {
			_ = s.expecter.Close()
		}
	})
	return err
}

func (s *ExpectSession) alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *ExpectSession) closeConn() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func isExpectTimeout(err error) bool {
	var te expect.TimeoutError
	return errors.As(err, &te)
}

// captureReader counts bytes read since the last reset and fails once the
// budget is exceeded. Overflow or a read error ends the session so a pending
// expect returns instead of waiting out its deadline.
type captureReader struct {
	r       io.Reader
	limit   int64
	n       atomic.Int64
	over    atomic.Bool
	onClose func() error

	// pending holds a read error that arrived together with data; the data
	// is delivered first
	pending error
}

func (c *captureReader) Read(p []byte) (int, error) {
	if err := c.pending; err != nil {
		c.close()
		return 0, err
	}
	n, err := c.r.Read(p)
	if c.n.Add(int64(n)) > c.limit {
		c.over.Store(true)
		c.close()
		return n, errCaptureOverflow
	}
	if err != nil {
		if n > 0 {
			c.pending = err
			return n, nil
		}
		c.close()
	}
	return n, err
}

func (c *captureReader) close() {
	if c.onClose != nil {
		_ = c.onClose()
	}
}

func (c *captureReader) reset() {
	c.n.Store(0)
}

func (c *captureReader) overflowed() bool {
	return c.over.Load()
}

// sessionWriter marks the session dead on the first write failure so later
// sends fail fast instead of blocking
type sessionWriter struct {
	w     io.WriteCloser
	onErr func() error
}

func (w *sessionWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if err != nil {
		_ = w.onErr()
	}
	return n, err
}

func (w *sessionWriter) Close() error {
	return w.onErr()
}

// cleanOutput removes the command echo, the trailing prompt line and any
// terminal escape codes from captured command output
func cleanOutput(output, command string, promptRE *regexp.Regexp) string {
	lines := strings.Split(common.CleanTerminalText(output), "\n")

	// Leading blank lines can precede the echo
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.Contains(lines[0], command) {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && promptRE.MatchString(lines[n-1]) {
		lines = lines[:n-1]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
