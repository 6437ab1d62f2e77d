package nokia

import (
	"context"
	"fmt"
	"time"

	"github.com/nanoncore/nano-optics/types"
)

// Adapter wraps a transport runner with Nokia ISAM CLI knowledge
type Adapter struct {
	runner types.Runner
}

// ONTOptics is the outcome of an optics query before it is stamped
type ONTOptics struct {
	// Raw is stdout, or stderr when stdout is empty
	Raw    string
	RxDBm  *float64
	Result *types.ExecResult
}

// NewAdapter creates a new Nokia adapter
func NewAdapter(runner types.Runner) *Adapter {
	return &Adapter{runner: runner}
}

// ShowVersion runs the connectivity probe command
func (a *Adapter) ShowVersion(ctx context.Context, params types.ConnectionParams, timeout time.Duration) (*types.ExecResult, error) {
	result, err := a.runner.Run(ctx, params, VersionCommand, timeout)
	if err != nil {
		return nil, fmt.Errorf("Nokia show version failed: %w", err)
	}
	return result, nil
}

// GetONTOptics reads optics for ontPath and parses the RX level
func (a *Adapter) GetONTOptics(ctx context.Context, params types.ConnectionParams, ontPath string, timeout time.Duration) (*ONTOptics, error) {
	result, err := a.runner.Run(ctx, params, OpticsCommand(ontPath), timeout)
	if err != nil {
		return nil, fmt.Errorf("Nokia ONT optics query failed: %w", err)
	}

	raw := result.Stdout
	if raw == "" {
		raw = result.Stderr
	}

	return &ONTOptics{
		Raw:    raw,
		RxDBm:  ParseRxDBm(raw),
		Result: result,
	}, nil
}
