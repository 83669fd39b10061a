package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/threadline/chat-relay/pkg/logger"
	"github.com/threadline/chat-relay/pkg/model"
	"github.com/threadline/chat-relay/pkg/presence"
)

// PresenceHandler serves the online-user snapshot from the Redis mirror the
// relay's registry maintains.
type PresenceHandler struct {
	rdb *redis.Client
}

func NewPresenceHandler(rdb *redis.Client) *PresenceHandler {
	return &PresenceHandler{rdb: rdb}
}

func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	members, err := h.rdb.SMembers(r.Context(), presence.OnlineKey).Result()
	if err != nil {
		logger.Log.Error("fetch presence failed", zap.Error(err))
		http.Error(w, "Failed to fetch presence", http.StatusInternalServerError)
		return
	}

	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.PresenceUpdate{OnlineUserIDs: ids})
}
