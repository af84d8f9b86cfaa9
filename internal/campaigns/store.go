// File: backend/internal/campaigns/store.go
package campaigns

// CampaignStore defines the interface for campaign storage and for every
// mutation of campaign state. All counter and status updates go through the
// store so a single implementation-owned mutual-exclusion point guards them;
// workers never mutate a Campaign they hold directly.
type CampaignStore interface {
	// CreateCampaign saves a new pending campaign to the store.
	CreateCampaign(campaign *Campaign) error

	// GetCampaign retrieves a consistent snapshot of a campaign by its ID.
	GetCampaign(campaignID string) (*Campaign, error)

	// ListCampaigns retrieves snapshots of all campaigns, optionally filtered
	// by status via filters["status"].
	ListCampaigns(filters map[string]string) ([]*Campaign, error)

	// DeleteCampaign removes a campaign. It fails with *InvalidStateError if
	// the campaign is currently running.
	DeleteCampaign(campaignID string) error

	// MarkStarted transitions pending -> running, stamps StartedAt exactly
	// once and records the run mode and total batch count.
	MarkStarted(campaignID string, mode CampaignMode, totalBatches int) error

	// MarkPaused transitions running -> paused. Lightning runs cannot be
	// paused and yield *InvalidStateError.
	MarkPaused(campaignID string) error

	// MarkResumed transitions paused -> running.
	MarkResumed(campaignID string) error

	// MarkCompleted transitions a running or paused campaign to completed and
	// stamps CompletedAt. Paused is permitted so a pause that lands after the
	// final unit has been dispatched cannot strand a fully processed run.
	MarkCompleted(campaignID string) error

	// MarkFailed transitions a non-terminal campaign to failed, appends the
	// abort reason to the error log and stamps CompletedAt.
	MarkFailed(campaignID string, reason string) error

	// RecordOutcome atomically counts one executed task unit against the
	// aggregate and per-project counters. Failure reasons are appended to the
	// bounded error log. Outcomes arriving after a terminal transition are
	// discarded, not recorded.
	RecordOutcome(campaignID, projectID string, success bool, reason string) error

	// RecordIssued atomically counts n lightning dispatches as issued for the
	// given project. Like RecordOutcome it discards late arrivals.
	RecordIssued(campaignID, projectID string, n int) error

	// SetCursor updates the human-facing progress fields (current project and
	// batch number) for polling consumers.
	SetCursor(campaignID, projectID string, batchNumber int) error

	// ActiveCount reports how many campaigns are currently running or paused.
	ActiveCount() int
}
