// File: backend/internal/api/campaign_handlers.go
package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/resetflow/backend/internal/campaigns"
)

// CreateCampaignRequest defines the payload for creating a campaign.
type CreateCampaignRequest struct {
	Name          string              `json:"name"`
	ProjectIDs    []string            `json:"projectIds"`
	SelectedUsers map[string][]string `json:"selectedUsers"`
	BatchSize     int                 `json:"batchSize"`
	WorkerCount   int                 `json:"workerCount"`
	Template      string              `json:"template,omitempty"`
}

// CreateCampaignHandler validates the request and persists a pending
// campaign. Nothing is dispatched until the campaign is started.
func (h *APIHandler) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	campaign, err := campaigns.NewCampaign(req.Name, req.ProjectIDs, req.SelectedUsers, req.BatchSize, req.WorkerCount, req.Template)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if err := h.Store.CreateCampaign(campaign); err != nil {
		respondWithDomainError(w, err)
		return
	}
	log.Printf("API: Created campaign '%s' (%s): %d projects, %d users", campaign.CampaignName, campaign.CampaignID, len(campaign.ProjectIDs), campaign.TotalUsers())
	respondWithJSON(w, http.StatusCreated, campaign)
}

// ListCampaignsHandler lists campaign snapshots, optionally filtered by
// ?status=.
func (h *APIHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	filters := map[string]string{}
	if status := r.URL.Query().Get("status"); status != "" {
		filters["status"] = status
	}
	list, err := h.Store.ListCampaigns(filters)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// GetCampaignProgressHandler returns a consistent snapshot of the campaign.
// Safe to poll repeatedly; counters are never observed mid-update.
func (h *APIHandler) GetCampaignProgressHandler(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaignId"]
	campaign, err := h.Store.GetCampaign(campaignID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, campaign)
}

// StartCampaignHandler launches the standard execution path.
func (h *APIHandler) StartCampaignHandler(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaignId"]
	if err := h.Engine.Start(campaignID); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}

// StartLightningCampaignHandler launches the fire-and-forget path. Only one
// lightning run may be active process-wide.
func (h *APIHandler) StartLightningCampaignHandler(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaignId"]
	if err := h.Engine.StartLightning(campaignID); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}

// PauseCampaignHandler suspends a running campaign after in-flight units
// complete.
func (h *APIHandler) PauseCampaignHandler(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaignId"]
	if err := h.Engine.Pause(campaignID); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ResumeCampaignHandler continues a paused campaign from where it stopped.
func (h *APIHandler) ResumeCampaignHandler(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaignId"]
	if err := h.Engine.Resume(campaignID); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteCampaignHandler removes a campaign that is not currently running.
func (h *APIHandler) DeleteCampaignHandler(w http.ResponseWriter, r *http.Request) {
	campaignID := mux.Vars(r)["campaignId"]
	if err := h.Engine.Delete(campaignID); err != nil {
		respondWithDomainError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
