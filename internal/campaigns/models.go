// File: backend/internal/campaigns/models.go
package campaigns

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CampaignMode distinguishes the two execution paths. Standard runs are
// batched, rate-gated and confirm every dispatch; lightning runs trade
// confirmation for throughput and only count issued requests.
type CampaignMode string

const (
	ModeStandard  CampaignMode = "standard"
	ModeLightning CampaignMode = "lightning"
)

// CampaignStatus defines the possible statuses of a campaign.
type CampaignStatus string

const (
	StatusPending   CampaignStatus = "pending"
	StatusRunning   CampaignStatus = "running"
	StatusPaused    CampaignStatus = "paused"
	StatusCompleted CampaignStatus = "completed"
	StatusFailed    CampaignStatus = "failed"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s CampaignStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Validation bounds for campaign parameters.
const (
	MinBatchSize   = 1
	MaxBatchSize   = 500
	MinWorkerCount = 1
	MaxWorkerCount = 50
	// MaxErrorLogEntries caps the per-campaign error log; older entries are
	// rotated out so long runs cannot grow memory without bound.
	MaxErrorLogEntries = 100
)

// ProjectStats holds per-project counters. Processed == Successful + Failed
// at every observation point on the standard path; Issued is the lightning
// path's optimistic count and is never folded into Successful.
type ProjectStats struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Issued     int `json:"issued,omitempty"`
}

// Campaign is the root aggregate for one bulk password-reset run.
type Campaign struct {
	CampaignID   string       `json:"campaignId"`
	CampaignName string       `json:"campaignName"`
	Mode         CampaignMode `json:"mode"`

	// ProjectIDs preserves the caller's project order; SelectedUsers maps
	// each project to its ordered, de-duplicated target user IDs.
	ProjectIDs    []string            `json:"projectIds"`
	SelectedUsers map[string][]string `json:"selectedUsers"`

	BatchSize   int    `json:"batchSize"`
	WorkerCount int    `json:"workerCount"`
	Template    string `json:"template,omitempty"`

	Status CampaignStatus `json:"status"`

	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	// Issued counts lightning dispatches that left the process. It is an
	// optimistic "sent" count, not a confirmation of delivery.
	Issued int `json:"issued,omitempty"`

	PerProjectStats map[string]*ProjectStats `json:"perProjectStats"`

	Errors []string `json:"errors"`

	CurrentProject string `json:"currentProject,omitempty"`
	CurrentBatch   int    `json:"currentBatch,omitempty"`
	TotalBatches   int    `json:"totalBatches,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// NewCampaign validates the parameters and builds a pending campaign.
// Selections are de-duplicated per project while preserving order. Returns a
// *ValidationError for empty selections or out-of-bound sizes.
func NewCampaign(name string, projectIDs []string, selectedUsers map[string][]string, batchSize, workerCount int, template string) (*Campaign, error) {
	if batchSize < MinBatchSize || batchSize > MaxBatchSize {
		return nil, &ValidationError{Reason: fmt.Sprintf("batchSize must be between %d and %d, got %d", MinBatchSize, MaxBatchSize, batchSize)}
	}
	if workerCount < MinWorkerCount || workerCount > MaxWorkerCount {
		return nil, &ValidationError{Reason: fmt.Sprintf("workerCount must be between %d and %d, got %d", MinWorkerCount, MaxWorkerCount, workerCount)}
	}
	if len(projectIDs) == 0 {
		return nil, &ValidationError{Reason: "at least one project must be selected"}
	}

	users := make(map[string][]string, len(projectIDs))
	total := 0
	seenProjects := make(map[string]bool, len(projectIDs))
	orderedProjects := make([]string, 0, len(projectIDs))
	for _, pid := range projectIDs {
		if pid == "" {
			return nil, &ValidationError{Reason: "project ID must not be empty"}
		}
		if seenProjects[pid] {
			continue
		}
		seenProjects[pid] = true
		orderedProjects = append(orderedProjects, pid)
		users[pid] = dedupePreservingOrder(selectedUsers[pid])
		total += len(users[pid])
	}
	if total == 0 {
		return nil, &ValidationError{Reason: "no users selected for any project"}
	}

	stats := make(map[string]*ProjectStats, len(orderedProjects))
	for _, pid := range orderedProjects {
		stats[pid] = &ProjectStats{}
	}

	return &Campaign{
		CampaignID:      uuid.NewString(),
		CampaignName:    name,
		Mode:            ModeStandard,
		ProjectIDs:      orderedProjects,
		SelectedUsers:   users,
		BatchSize:       batchSize,
		WorkerCount:     workerCount,
		Template:        template,
		Status:          StatusPending,
		PerProjectStats: stats,
		Errors:          []string{},
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// TotalUsers is the campaign's target total across all projects.
func (c *Campaign) TotalUsers() int {
	total := 0
	for _, pid := range c.ProjectIDs {
		total += len(c.SelectedUsers[pid])
	}
	return total
}

// AppendError records a failure description, rotating out the oldest entries
// beyond MaxErrorLogEntries.
func (c *Campaign) AppendError(msg string) {
	c.Errors = append(c.Errors, msg)
	if over := len(c.Errors) - MaxErrorLogEntries; over > 0 {
		c.Errors = append([]string(nil), c.Errors[over:]...)
	}
}

// Snapshot deep-copies the campaign so readers never observe in-place
// mutation by workers. Callers must hold whatever lock guards c.
func (c *Campaign) Snapshot() *Campaign {
	cp := *c
	cp.ProjectIDs = append([]string(nil), c.ProjectIDs...)
	cp.SelectedUsers = make(map[string][]string, len(c.SelectedUsers))
	for pid, uids := range c.SelectedUsers {
		cp.SelectedUsers[pid] = append([]string(nil), uids...)
	}
	cp.PerProjectStats = make(map[string]*ProjectStats, len(c.PerProjectStats))
	for pid, st := range c.PerProjectStats {
		stCopy := *st
		cp.PerProjectStats[pid] = &stCopy
	}
	cp.Errors = append([]string(nil), c.Errors...)
	if c.StartedAt != nil {
		t := *c.StartedAt
		cp.StartedAt = &t
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func dedupePreservingOrder(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
