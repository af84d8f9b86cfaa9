// File: backend/internal/memorystore/inmemory_campaign_store.go
package memorystore

import (
	"sync"
	"time"

	"github.com/resetflow/backend/internal/campaigns"
)

// InMemoryCampaignStore provides an in-memory implementation of the
// CampaignStore interface. The single mutex is the serialization point the
// state machine requires: concurrent RecordOutcome calls from workers can
// never leave processed != successful + failed observable by a reader.
type InMemoryCampaignStore struct {
	mu        sync.RWMutex
	campaigns map[string]*campaigns.Campaign
}

// NewInMemoryCampaignStore creates a new instance of InMemoryCampaignStore.
func NewInMemoryCampaignStore() *InMemoryCampaignStore {
	return &InMemoryCampaignStore{
		campaigns: make(map[string]*campaigns.Campaign),
	}
}

// CreateCampaign saves a new pending campaign to the store.
func (s *InMemoryCampaignStore) CreateCampaign(campaign *campaigns.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.campaigns[campaign.CampaignID]; exists {
		return &campaigns.ConflictError{Reason: "campaign with ID " + campaign.CampaignID + " already exists"}
	}
	s.campaigns[campaign.CampaignID] = campaign.Snapshot()
	return nil
}

// GetCampaign retrieves a snapshot of a campaign by its ID.
func (s *InMemoryCampaignStore) GetCampaign(campaignID string) (*campaigns.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.campaigns[campaignID]
	if !exists {
		return nil, &campaigns.NotFoundError{CampaignID: campaignID}
	}
	return c.Snapshot(), nil
}

// ListCampaigns retrieves snapshots of all campaigns, optionally filtered by
// status.
func (s *InMemoryCampaignStore) ListCampaigns(filters map[string]string) ([]*campaigns.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*campaigns.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		if statusFilter, ok := filters["status"]; ok && string(c.Status) != statusFilter {
			continue
		}
		result = append(result, c.Snapshot())
	}
	return result, nil
}

// DeleteCampaign removes a campaign. Running campaigns must be paused or
// finished first.
func (s *InMemoryCampaignStore) DeleteCampaign(campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.campaigns[campaignID]
	if !exists {
		return &campaigns.NotFoundError{CampaignID: campaignID}
	}
	if c.Status == campaigns.StatusRunning {
		return &campaigns.InvalidStateError{CampaignID: campaignID, Status: c.Status, Operation: "delete"}
	}
	delete(s.campaigns, campaignID)
	return nil
}

// MarkStarted transitions pending -> running and stamps StartedAt once.
func (s *InMemoryCampaignStore) MarkStarted(campaignID string, mode campaigns.CampaignMode, totalBatches int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.campaigns[campaignID]
	if !exists {
		return &campaigns.NotFoundError{CampaignID: campaignID}
	}
	if c.Status != campaigns.StatusPending {
		return &campaigns.InvalidStateError{CampaignID: campaignID, Status: c.Status, Operation: "start"}
	}
	now := time.Now().UTC()
	c.Status = campaigns.StatusRunning
	c.Mode = mode
	c.TotalBatches = totalBatches
	c.StartedAt = &now
	return nil
}

// MarkPaused transitions running -> paused. Lightning runs have no suspension
// point (requests are already in flight) and cannot be paused.
func (s *InMemoryCampaignStore) MarkPaused(campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.campaigns[campaignID]
	if !exists {
		return &campaigns.NotFoundError{CampaignID: campaignID}
	}
	if c.Status != campaigns.StatusRunning || c.Mode == campaigns.ModeLightning {
		return &campaigns.InvalidStateError{CampaignID: campaignID, Status: c.Status, Operation: "pause"}
	}
	c.Status = campaigns.StatusPaused
	return nil
}

// MarkResumed transitions paused -> running.
func (s *InMemoryCampaignStore) MarkResumed(campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.campaigns[campaignID]
	if !exists {
		return &campaigns.NotFoundError{CampaignID: campaignID}
	}
	if c.Status != campaigns.StatusPaused {
		return &campaigns.InvalidStateError{CampaignID: campaignID, Status: c.Status, Operation: "resume"}
	}
	c.Status = campaigns.StatusRunning
	return nil
}

// MarkCompleted transitions a running or paused campaign to completed and
// stamps CompletedAt once. Paused is accepted because a pause request can land
// after the final unit has already been dispatched; the run is fully processed
// at that point and must still reach its terminal state.
func (s *InMemoryCampaignStore) MarkCompleted(campaignID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.campaigns[campaignID]
	if !exists {
		return &campaigns.NotFoundError{CampaignID: campaignID}
	}
	if c.Status != campaigns.StatusRunning && c.Status != campaigns.StatusPaused {
		return &campaigns.InvalidStateError{CampaignID: campaignID, Status: c.Status, Operation: "complete"}
	}
	now := time.Now().UTC()
	c.Status = campaigns.StatusCompleted
	c.CompletedAt = &now
	c.CurrentProject = ""
	return nil
}

// MarkFailed aborts a non-terminal campaign with the given reason.
func (s *InMemoryCampaignStore) MarkFailed(campaignID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.campaigns[campaignID]
	if !exists {
		return &campaigns.NotFoundError{CampaignID: campaignID}
	}
	if c.Status.IsTerminal() {
		return &campaigns.InvalidStateError{CampaignID: campaignID, Status: c.Status, Operation: "fail"}
	}
	now := time.Now().UTC()
	c.Status = campaigns.StatusFailed
	c.CompletedAt = &now
	if reason != "" {
		c.AppendError(reason)
	}
	return nil
}

// RecordOutcome counts one executed task unit. Outcomes arriving after a
// terminal transition (e.g. a late worker after an abort) are discarded.
func (s *InMemoryCampaignStore) RecordOutcome(campaignID, projectID string, success bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.campaigns[campaignID]
	if !exists {
		return &campaigns.NotFoundError{CampaignID: campaignID}
	}
	if c.Status.IsTerminal() {
		return nil
	}
	stats, ok := c.PerProjectStats[projectID]
	if !ok {
		stats = &campaigns.ProjectStats{}
		c.PerProjectStats[projectID] = stats
	}
	c.Processed++
	stats.Processed++
	if success {
		c.Successful++
		stats.Successful++
	} else {
		c.Failed++
		stats.Failed++
		if reason != "" {
			c.AppendError(reason)
		}
	}
	return nil
}

// RecordIssued counts n lightning dispatches as issued.
func (s *InMemoryCampaignStore) RecordIssued(campaignID, projectID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.campaigns[campaignID]
	if !exists {
		return &campaigns.NotFoundError{CampaignID: campaignID}
	}
	if c.Status.IsTerminal() {
		return nil
	}
	stats, ok := c.PerProjectStats[projectID]
	if !ok {
		stats = &campaigns.ProjectStats{}
		c.PerProjectStats[projectID] = stats
	}
	c.Issued += n
	stats.Issued += n
	return nil
}

// SetCursor updates the polling-facing progress fields.
func (s *InMemoryCampaignStore) SetCursor(campaignID, projectID string, batchNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.campaigns[campaignID]
	if !exists {
		return &campaigns.NotFoundError{CampaignID: campaignID}
	}
	if c.Status.IsTerminal() {
		return nil
	}
	c.CurrentProject = projectID
	if batchNumber > c.CurrentBatch {
		c.CurrentBatch = batchNumber
	}
	return nil
}

// ActiveCount reports how many campaigns are running or paused.
func (s *InMemoryCampaignStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.campaigns {
		if c.Status == campaigns.StatusRunning || c.Status == campaigns.StatusPaused {
			n++
		}
	}
	return n
}

// Ensure InMemoryCampaignStore implements CampaignStore interface from the campaigns package
var _ campaigns.CampaignStore = (*InMemoryCampaignStore)(nil)
