package main

import (
	"encoding/json"
	"net/http"

	"github.com/threadline/chat-relay/pkg/auth"
)

type TokenRequest struct {
	ExternalID  string `json:"externalId"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// TokenHandler mints a development token for an external user reference. In
// production the identity provider issues tokens with the same claims.
func TokenHandler(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ExternalID == "" {
		http.Error(w, "externalId is required", http.StatusBadRequest)
		return
	}

	token, err := auth.GenerateToken(req.ExternalID, req.DisplayName, req.Handle)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TokenResponse{Token: token})
}
