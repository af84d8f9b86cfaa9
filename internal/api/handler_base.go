// File: backend/internal/api/handler_base.go
package api

import (
	"github.com/resetflow/backend/internal/campaigns"
	"github.com/resetflow/backend/internal/config"
	"github.com/resetflow/backend/internal/engine"
)

// APIHandler holds shared dependencies for API handlers: configuration, the
// campaign store, the execution engine and the dispatch sender used by the
// test-email endpoint.
type APIHandler struct {
	Config *config.AppConfig
	Store  campaigns.CampaignStore
	Engine *engine.Engine
	Sender engine.Sender
}

// NewAPIHandler creates a new APIHandler with dependencies.
func NewAPIHandler(cfg *config.AppConfig, store campaigns.CampaignStore, eng *engine.Engine, sender engine.Sender) *APIHandler {
	return &APIHandler{
		Config: cfg,
		Store:  store,
		Engine: eng,
		Sender: sender,
	}
}
