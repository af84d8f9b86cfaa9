// File: backend/internal/engine/rotation.go
package engine

import (
	"context"
	"log"

	"github.com/resetflow/backend/internal/campaigns"
	"golang.org/x/sync/errgroup"
)

// runConcurrent executes every project's batch sequence in parallel, one
// worker pool per project. At most workerCount x activeProjectCount units
// execute concurrently. A systemic abort in one project cancels the others.
func (e *Engine) runConcurrent(ctx context.Context, c *campaigns.Campaign, run *campaignRun, gate *RateGate) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, projectID := range c.ProjectIDs {
		projectID := projectID
		userIDs := c.SelectedUsers[projectID]
		if len(userIDs) == 0 {
			continue
		}
		g.Go(func() error {
			return e.runProjectBatches(gctx, c, run, gate, projectID, PartitionUsers(projectID, userIDs, c.BatchSize))
		})
	}
	return g.Wait()
}

// runRoundRobin completes one batch per project before returning to the
// first, so a project with a large selection cannot starve the others.
func (e *Engine) runRoundRobin(ctx context.Context, c *campaigns.Campaign, run *campaignRun, gate *RateGate) error {
	batchesByProject := make(map[string][]Batch, len(c.ProjectIDs))
	next := make(map[string]int, len(c.ProjectIDs))
	remaining := 0
	for _, projectID := range c.ProjectIDs {
		batchesByProject[projectID] = PartitionUsers(projectID, c.SelectedUsers[projectID], c.BatchSize)
		remaining += len(batchesByProject[projectID])
	}

	for remaining > 0 {
		for _, projectID := range c.ProjectIDs {
			idx := next[projectID]
			batches := batchesByProject[projectID]
			if idx >= len(batches) {
				continue
			}
			next[projectID] = idx + 1
			remaining--
			if err := e.runOneBatch(ctx, c, run, gate, batches[idx]); err != nil {
				return err
			}
		}
	}
	return nil
}

// runProjectBatches drains one project's batches strictly in sequence
// (batch N+1 does not start until batch N's units are all dispatched).
func (e *Engine) runProjectBatches(ctx context.Context, c *campaigns.Campaign, run *campaignRun, gate *RateGate, projectID string, batches []Batch) error {
	for _, batch := range batches {
		if err := e.runOneBatch(ctx, c, run, gate, batch); err != nil {
			return err
		}
	}
	return nil
}

// runOneBatch advances the progress cursor, drains the batch and imposes the
// inter-batch pause.
func (e *Engine) runOneBatch(ctx context.Context, c *campaigns.Campaign, run *campaignRun, gate *RateGate, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seq := int(run.batchSeq.Add(1))
	if err := e.store.SetCursor(c.CampaignID, batch.ProjectID, seq); err != nil {
		log.Printf("WARN: Engine: Could not update cursor for campaign %s: %v", c.CampaignID, err)
	}
	log.Printf("INFO: Engine: Campaign %s processing batch %d/%d (project %s, %d users)",
		c.CampaignID, seq, c.TotalBatches, batch.ProjectID, len(batch.UserIDs))
	if err := e.processBatch(ctx, c, run, gate, batch); err != nil {
		return err
	}
	return BatchPause(ctx, e.cfg.BatchPause)
}
