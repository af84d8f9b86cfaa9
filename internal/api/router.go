// File: backend/internal/api/router.go
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/resetflow/backend/internal/campaigns"
	"github.com/resetflow/backend/internal/config"
	"github.com/resetflow/backend/internal/engine"
)

func NewRouter(cfg *config.AppConfig, store campaigns.CampaignStore, eng *engine.Engine, sender engine.Sender) *mux.Router {
	router := mux.NewRouter()
	apiHandler := NewAPIHandler(cfg, store, eng, sender)

	router.Use(LoggingMiddleware)
	router.Use(CORSMiddleware)

	router.HandleFunc("/ping", apiHandler.PingHandler).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/health", apiHandler.HealthHandler).Methods(http.MethodGet, http.MethodOptions)

	apiV1 := router.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(APIKeyAuthMiddleware(cfg.Server.APIKey))

	// Campaigns
	apiV1.HandleFunc("/campaigns", apiHandler.ListCampaignsHandler).Methods(http.MethodGet, http.MethodOptions)
	apiV1.HandleFunc("/campaigns", apiHandler.CreateCampaignHandler).Methods(http.MethodPost, http.MethodOptions)
	apiV1.HandleFunc("/campaigns/{campaignId}", apiHandler.GetCampaignProgressHandler).Methods(http.MethodGet, http.MethodOptions)
	apiV1.HandleFunc("/campaigns/{campaignId}", apiHandler.DeleteCampaignHandler).Methods(http.MethodDelete, http.MethodOptions)
	apiV1.HandleFunc("/campaigns/{campaignId}/start", apiHandler.StartCampaignHandler).Methods(http.MethodPost, http.MethodOptions)
	apiV1.HandleFunc("/campaigns/{campaignId}/pause", apiHandler.PauseCampaignHandler).Methods(http.MethodPost, http.MethodOptions)
	apiV1.HandleFunc("/campaigns/{campaignId}/resume", apiHandler.ResumeCampaignHandler).Methods(http.MethodPost, http.MethodOptions)
	apiV1.HandleFunc("/campaigns/{campaignId}/lightning", apiHandler.StartLightningCampaignHandler).Methods(http.MethodPost, http.MethodOptions)

	// Dispatch utilities
	apiV1.HandleFunc("/dispatch/test", apiHandler.TestDispatchHandler).Methods(http.MethodPost, http.MethodOptions)

	return router
}
