package presence

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/threadline/chat-relay/pkg/logger"
)

// OnlineKey is the Redis set mirroring the online user ids, read by the api
// service. The in-memory map stays authoritative; the mirror is best-effort.
const OnlineKey = "presence:online"

// Registry tracks which connections each user currently holds. It is the only
// shared mutable state in the relay: every mutation runs inside one critical
// section so per-user sets never race.
type Registry struct {
	mu     sync.Mutex
	online map[int64]map[string]struct{}
	rdb    *redis.Client
}

// NewRegistry returns an empty registry. rdb may be nil, in which case the
// Redis mirror is disabled.
func NewRegistry(rdb *redis.Client) *Registry {
	return &Registry{
		online: make(map[int64]map[string]struct{}),
		rdb:    rdb,
	}
}

// Add records a connection for a user. Idempotent: re-adding the same
// connection id is a no-op beyond set semantics.
func (r *Registry) Add(userID int64, connID string) {
	r.mu.Lock()
	conns, ok := r.online[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.online[userID] = conns
	}
	conns[connID] = struct{}{}
	first := !ok
	r.mu.Unlock()

	if first && r.rdb != nil {
		if err := r.rdb.SAdd(context.Background(), OnlineKey, strconv.FormatInt(userID, 10)).Err(); err != nil {
			logger.Log.Warn("presence mirror add failed", zap.Int64("userId", userID), zap.Error(err))
		}
	}
}

// Remove drops a connection for a user. Removing an unknown mapping is a
// silent no-op. The user's entry is deleted, not left empty, when the last
// connection goes away.
func (r *Registry) Remove(userID int64, connID string) {
	r.mu.Lock()
	conns, ok := r.online[userID]
	if ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.online, userID)
		}
	}
	last := ok && len(conns) == 0
	r.mu.Unlock()

	if last && r.rdb != nil {
		if err := r.rdb.SRem(context.Background(), OnlineKey, strconv.FormatInt(userID, 10)).Err(); err != nil {
			logger.Log.Warn("presence mirror remove failed", zap.Int64("userId", userID), zap.Error(err))
		}
	}
}

// OnlineUserIDs returns a sorted snapshot of users with at least one live
// connection.
func (r *Registry) OnlineUserIDs() []int64 {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.online))
	for id := range r.online {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
