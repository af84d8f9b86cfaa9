// File: backend/internal/api/dispatch_handlers.go
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// TestDispatchRequest identifies a single user for a test password-reset
// send, bypassing the campaign machinery.
type TestDispatchRequest struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
	Template  string `json:"template,omitempty"`
}

// TestDispatchHandler sends one password-reset email so operators can verify
// provider credentials and template configuration before launching a
// campaign. Failures are reported in the body, not as an HTTP error.
func (h *APIHandler) TestDispatchHandler(w http.ResponseWriter, r *http.Request) {
	var req TestDispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()
	if req.ProjectID == "" || req.UserID == "" {
		respondWithError(w, http.StatusBadRequest, "projectId and userId are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := h.Sender.SendPasswordReset(ctx, req.ProjectID, req.UserID, req.Template); err != nil {
		log.Printf("API: Test dispatch for user %s in project %s failed: %v", req.UserID, req.ProjectID, err)
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HealthHandler reports service liveness and the number of active campaigns.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"activeCampaigns": h.Store.ActiveCount(),
	})
}

// PingHandler responds to a simple liveness probe.
func (h *APIHandler) PingHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}
