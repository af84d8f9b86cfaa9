// File: backend/internal/campaigns/errors.go
package campaigns

import "fmt"

// ValidationError rejects malformed campaign parameters before any state is
// created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid campaign parameters: " + e.Reason
}

// NotFoundError indicates the referenced campaign does not exist in the store.
type NotFoundError struct {
	CampaignID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

// InvalidStateError indicates an operation attempted from an incompatible
// campaign status, e.g. pausing a completed campaign.
type InvalidStateError struct {
	CampaignID string
	Status     CampaignStatus
	Operation  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s campaign %s in status '%s'", e.Operation, e.CampaignID, e.Status)
}

// ConflictError indicates a mutual-exclusion violation, e.g. starting a
// second lightning run while one is active.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}
