package snowflake

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NodeRange(t *testing.T) {
	_, err := New(-1)
	assert.Error(t, err)

	_, err = New(1024)
	assert.Error(t, err)

	g, err := New(1023)
	require.NoError(t, err)
	assert.Positive(t, g.NextID())
}

func TestNextID_UniqueUnderConcurrency(t *testing.T) {
	g, err := New(1)
	require.NoError(t, err)

	const workers = 8
	const perWorker = 2000

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perWorker)
			for j := 0; j < perWorker; j++ {
				ids = append(ids, g.NextID())
			}
			mu.Lock()
			for _, id := range ids {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestNextID_Monotonic(t *testing.T) {
	g, err := New(1)
	require.NoError(t, err)

	prev := g.NextID()
	for i := 0; i < 1000; i++ {
		id := g.NextID()
		require.Greater(t, id, prev)
		prev = id
	}
}
