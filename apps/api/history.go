package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/threadline/chat-relay/pkg/logger"
	"github.com/threadline/chat-relay/pkg/model"
)

const (
	// The default applies when limit is missing or non-numeric; the cap is a
	// hard upper bound regardless of what the client asks for.
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// ConversationLister is the slice of the message store the handler needs.
type ConversationLister interface {
	ListConversation(ctx context.Context, userA, userB int64, limit int) ([]model.DirectMessage, error)
}

type HistoryHandler struct {
	store ConversationLister
}

func NewHistoryHandler(store ConversationLister) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// parseLimit coerces the limit query parameter to a usable bound.
func parseLimit(raw string) int {
	if raw == "" {
		return defaultHistoryLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultHistoryLimit
	}
	if n > maxHistoryLimit {
		return maxHistoryLimit
	}
	return n
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	otherUserID, err := strconv.ParseInt(mux.Vars(r)["otherUserId"], 10, 64)
	if err != nil || otherUserID <= 0 {
		http.Error(w, "Invalid otherUserId", http.StatusBadRequest)
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))

	messages, err := h.store.ListConversation(r.Context(), identity.UserID, otherUserID, limit)
	if err != nil {
		logger.Log.Error("list conversation failed",
			zap.Int64("userId", identity.UserID), zap.Int64("otherUserId", otherUserID), zap.Error(err))
		http.Error(w, "Failed to retrieve messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []model.DirectMessage{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": messages})
}
