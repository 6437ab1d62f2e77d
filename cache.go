package optics

import (
	"sync"

	"github.com/nanoncore/nano-optics/types"
)

// ConnectionCache holds the most recently verified connection parameters.
// It has exactly one slot; Store replaces all four fields at once.
type ConnectionCache struct {
	mu     sync.RWMutex
	params *types.ConnectionParams
}

// NewConnectionCache creates an empty cache
func NewConnectionCache() *ConnectionCache {
	return &ConnectionCache{}
}

// Store overwrites the slot
func (c *ConnectionCache) Store(params types.ConnectionParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = &params
}

// Load returns a copy of the slot and whether it was ever written
func (c *ConnectionCache) Load() (types.ConnectionParams, bool) {
	if c == nil {
		return types.ConnectionParams{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.params == nil {
		return types.ConnectionParams{}, false
	}
	return *c.params, true
}
