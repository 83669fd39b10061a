package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddRemove(t *testing.T) {
	tests := []struct {
		name       string
		ops        func(r *Registry)
		wantOnline []int64
	}{
		{
			name:       "empty registry",
			ops:        func(r *Registry) {},
			wantOnline: []int64{},
		},
		{
			name: "single connection",
			ops: func(r *Registry) {
				r.Add(1, "c1")
			},
			wantOnline: []int64{1},
		},
		{
			name: "add is idempotent",
			ops: func(r *Registry) {
				r.Add(1, "c1")
				r.Add(1, "c1")
				r.Remove(1, "c1")
			},
			wantOnline: []int64{},
		},
		{
			name: "user stays online while any connection remains",
			ops: func(r *Registry) {
				r.Add(1, "c1")
				r.Add(1, "c2")
				r.Remove(1, "c1")
			},
			wantOnline: []int64{1},
		},
		{
			name: "entry removed with last connection",
			ops: func(r *Registry) {
				r.Add(1, "c1")
				r.Add(1, "c2")
				r.Remove(1, "c1")
				r.Remove(1, "c2")
			},
			wantOnline: []int64{},
		},
		{
			name: "remove unknown mapping is a no-op",
			ops: func(r *Registry) {
				r.Remove(9, "ghost")
				r.Add(2, "c1")
				r.Remove(2, "other")
			},
			wantOnline: []int64{2},
		},
		{
			name: "snapshot is sorted",
			ops: func(r *Registry) {
				r.Add(3, "c3")
				r.Add(1, "c1")
				r.Add(2, "c2")
			},
			wantOnline: []int64{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(nil)
			tt.ops(r)
			assert.Equal(t, tt.wantOnline, r.OnlineUserIDs())
		})
	}
}

func TestRegistry_ConcurrentLifecycles(t *testing.T) {
	r := NewRegistry(nil)
	const users = 50

	var wg sync.WaitGroup
	for i := 1; i <= users; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			// Each user churns a second connection while the first stays up.
			r.Add(userID, "primary")
			for j := 0; j < 20; j++ {
				connID := fmt.Sprintf("tab-%d", j)
				r.Add(userID, connID)
				r.Remove(userID, connID)
			}
		}(int64(i))
	}
	wg.Wait()

	online := r.OnlineUserIDs()
	require.Len(t, online, users, "no registration may be lost under concurrency")
	for i, id := range online {
		assert.Equal(t, int64(i+1), id)
	}
}
