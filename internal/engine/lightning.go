// File: backend/internal/engine/lightning.go
package engine

import (
	"context"
	"log"

	"github.com/resetflow/backend/internal/campaigns"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// StartLightning launches the opt-in maximum-throughput run for a pending
// campaign. Lightning abandons the rate gate, the sequential-batch rule and
// synchronous confirmation: a unit is counted as issued once its request has
// left the process, response errors are swallowed, and further retries are
// the provider's responsibility. Only one lightning run may be active at a
// time per engine; a second invocation fails with *ConflictError.
func (e *Engine) StartLightning(campaignID string) error {
	c, err := e.store.GetCampaign(campaignID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.lightningActive {
		activeID := e.lightningID
		e.mu.Unlock()
		return &campaigns.ConflictError{Reason: "a lightning run is already active for campaign " + activeID}
	}
	if _, exists := e.runs[campaignID]; exists {
		e.mu.Unlock()
		return &campaigns.InvalidStateError{CampaignID: campaignID, Status: campaigns.StatusRunning, Operation: "start lightning run for"}
	}
	subBatches := e.lightningSubBatches(c)
	if err := e.store.MarkStarted(campaignID, campaigns.ModeLightning, len(subBatches)); err != nil {
		e.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := &campaignRun{
		cancel: cancel,
		pause:  newPauseGate(),
		done:   make(chan struct{}),
	}
	e.lightningActive = true
	e.lightningID = campaignID
	e.runs[campaignID] = run
	e.mu.Unlock()

	log.Printf("INFO: Engine: Starting lightning run for campaign %s: %d users in %d sub-batches (cap %d, ceiling %d)",
		campaignID, c.TotalUsers(), len(subBatches), e.cfg.Lightning.SubBatchSize, e.cfg.Lightning.MaxInFlight)
	go e.runLightning(ctx, c, run, subBatches)
	return nil
}

// lightningSubBatches partitions every project's selection into sub-batches
// capped at the lightning size, regardless of the campaign's batch size.
func (e *Engine) lightningSubBatches(c *campaigns.Campaign) []Batch {
	var subBatches []Batch
	for _, projectID := range c.ProjectIDs {
		subBatches = append(subBatches, PartitionUsers(projectID, c.SelectedUsers[projectID], e.cfg.Lightning.SubBatchSize)...)
	}
	return subBatches
}

// runLightning issues all sub-batches for all projects concurrently, bounded
// only by the in-flight ceiling. Cancellation abandons unissued sub-batches;
// requests already issued cannot be retracted.
func (e *Engine) runLightning(ctx context.Context, c *campaigns.Campaign, run *campaignRun, subBatches []Batch) {
	defer close(run.done)
	defer func() {
		e.mu.Lock()
		e.lightningActive = false
		e.lightningID = ""
		if e.runs[c.CampaignID] == run {
			delete(e.runs, c.CampaignID)
		}
		e.mu.Unlock()
	}()
	defer run.cancel()

	sem := semaphore.NewWeighted(e.cfg.Lightning.MaxInFlight)
	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subBatches {
		sub := sub
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			e.issueSubBatch(gctx, c, sub)
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		log.Printf("INFO: Engine: Lightning run for campaign %s cancelled", c.CampaignID)
		return
	}
	if err := e.store.MarkCompleted(c.CampaignID); err != nil {
		log.Printf("WARN: Engine: Could not mark lightning campaign %s completed: %v", c.CampaignID, err)
		return
	}
	log.Printf("INFO: Engine: Lightning run for campaign %s completed", c.CampaignID)
}

// issueSubBatch fires one sub-batch's units with a short per-call timeout.
// Every request that leaves the process counts as issued, irrespective of the
// response; the optimistic count is deliberately distinct from the standard
// path's confirmed counters.
func (e *Engine) issueSubBatch(ctx context.Context, c *campaigns.Campaign, sub Batch) {
	for _, uid := range sub.UserIDs {
		if ctx.Err() != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Lightning.CallTimeout)
		err := e.lightningSender.SendPasswordReset(callCtx, sub.ProjectID, uid, c.Template)
		cancel()
		if err != nil && ctx.Err() != nil {
			// Cancelled before the request could be issued: do not count it.
			return
		}
		if recErr := e.store.RecordIssued(c.CampaignID, sub.ProjectID, 1); recErr != nil {
			log.Printf("WARN: Engine: Could not record issued unit for campaign %s: %v", c.CampaignID, recErr)
		}
	}
}
