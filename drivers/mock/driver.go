package mock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nanoncore/nano-optics/types"
)

// Call records one Run invocation
type Call struct {
	Params  types.ConnectionParams
	Command string
	Timeout time.Duration
}

// Runner implements types.Runner without connecting to real equipment.
// It simulates a Nokia OLT answering show version and ONT optics commands.
type Runner struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]*types.ExecResult
	rxPower   map[string]float64
	err       error
	delay     time.Duration
}

// NewRunner creates a new mock runner
func NewRunner() *Runner {
	return &Runner{
		responses: make(map[string]*types.ExecResult),
		rxPower:   make(map[string]float64),
	}
}

// SetResponse returns result verbatim whenever command is run
func (r *Runner) SetResponse(command string, result *types.ExecResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[command] = result
}

// SetOutput returns stdout with exit code 0 whenever command is run
func (r *Runner) SetOutput(command, stdout string) {
	code := 0
	r.SetResponse(command, &types.ExecResult{Stdout: stdout, ExitCode: &code})
}

// SetRxPower sets the RX power reported for an ONT path
func (r *Runner) SetRxPower(ontPath string, dbm float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rxPower[ontPath] = dbm
}

// SetError makes every subsequent Run fail with err
func (r *Runner) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// SetDelay simulates a slow device
func (r *Runner) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// Run simulates one command
func (r *Runner) Run(ctx context.Context, params types.ConnectionParams, command string, timeout time.Duration) (*types.ExecResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Params: params, Command: command, Timeout: timeout})
	delay, err := r.delay, r.err
	resp, hasResp := r.responses[command]
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if hasResp {
		copied := *resp
		return &copied, nil
	}

	code := 0
	return &types.ExecResult{Stdout: r.generateOutput(command), ExitCode: &code}, nil
}

// Calls returns the recorded invocations (useful for testing)
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make([]Call, len(r.calls))
	copy(calls, r.calls)
	return calls
}

// GetCommandHistory returns the commands run so far
func (r *Runner) GetCommandHistory() []string {
	calls := r.Calls()
	history := make([]string, 0, len(calls))
	for _, c := range calls {
		history = append(history, c.Command)
	}
	return history
}

func (r *Runner) generateOutput(command string) string {
	cmdLower := strings.ToLower(command)

	if strings.HasPrefix(cmdLower, "show equipment ont optics ont-id ") {
		ontPath := strings.TrimSpace(command[len("show equipment ont optics ont-id "):])
		return r.generateOpticsOutput(ontPath)
	}

	if strings.Contains(cmdLower, "version") {
		return generateVersionOutput()
	}

	return fmt.Sprintf("invalid token: %s", command)
}

func (r *Runner) generateOpticsOutput(ontPath string) string {
	r.mu.Lock()
	rx, ok := r.rxPower[ontPath]
	r.mu.Unlock()
	if !ok {
		rx = -19.8
	}

	return fmt.Sprintf(`ONT %s optics
  RX: %.1f dBm
  TX: 2.3 dBm
OK`, ontPath, rx)
}

func generateVersionOutput() string {
	return `
System Information
==================
Model:          Mock 7360 ISAM FX Simulator
Version:        FGN4.1.0
Serial Number:  MOCK-SIM-001
Uptime:         10 days, 5:30:22
`
}

// Ensure Runner implements required interfaces
var _ types.Runner = (*Runner)(nil)
