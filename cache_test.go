package optics

import (
	"fmt"
	"sync"
	"testing"

	"github.com/nanoncore/nano-optics/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionCacheEmpty(t *testing.T) {
	_, ok := NewConnectionCache().Load()
	assert.False(t, ok)

	var nilCache *ConnectionCache
	_, ok = nilCache.Load()
	assert.False(t, ok)
}

func TestConnectionCacheIdempotentStore(t *testing.T) {
	cache := NewConnectionCache()
	p := types.ConnectionParams{Host: "h", Port: 23, Username: "u", Password: "p"}

	cache.Store(p)
	cache.Store(p)

	got, ok := cache.Load()
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestConnectionCacheFullReplacement(t *testing.T) {
	cache := NewConnectionCache()
	cache.Store(types.ConnectionParams{Host: "h1", Port: 23, Username: "u1", Password: "p1"})
	cache.Store(types.ConnectionParams{Host: "h2", Username: "u2"})

	got, ok := cache.Load()
	require.True(t, ok)
	assert.Equal(t, types.ConnectionParams{Host: "h2", Username: "u2"}, got)
}

func TestConnectionCacheLoadReturnsCopy(t *testing.T) {
	cache := NewConnectionCache()
	cache.Store(types.ConnectionParams{Host: "h"})

	got, _ := cache.Load()
	got.Host = "mutated"

	again, _ := cache.Load()
	assert.Equal(t, "h", again.Host)
}

func TestConnectionCacheNoTornReads(t *testing.T) {
	cache := NewConnectionCache()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tag := fmt.Sprintf("%d-%d", i, j)
				cache.Store(types.ConnectionParams{Host: "h" + tag, Port: 1000 + i, Username: "u" + tag, Password: "p" + tag})
			}
		}(i)
	}

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				p, ok := cache.Load()
				if !ok {
					continue
				}
				tag := p.Host[1:]
				assert.Equal(t, "u"+tag, p.Username)
				assert.Equal(t, "p"+tag, p.Password)
			}
		}()
	}

	wg.Wait()
}
