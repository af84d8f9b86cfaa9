// File: backend/internal/engine/lightning_test.go
package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resetflow/backend/internal/campaigns"
	"github.com/resetflow/backend/internal/memorystore"
)

func TestLightningIssuesEverythingAndCompletes(t *testing.T) {
	store := memorystore.NewInMemoryCampaignStore()
	sender := newFakeSender()
	// Lightning swallows response errors: a failing provider must not slow the
	// run down or reduce the issued count.
	sender.fn = func(ctx context.Context, projectID, userID string) error {
		if projectID == "proj-b" {
			return errors.New("provider melted down")
		}
		return nil
	}
	eng := New(store, newFakeSender(), sender, nil, fastConfig())

	c, err := campaigns.NewCampaign("flash", []string{"proj-a", "proj-b"}, map[string][]string{
		"proj-a": makeUserIDs(150),
		"proj-b": {"b1", "b2", "b3"},
	}, 50, 5, "")
	require.NoError(t, err)
	require.NoError(t, store.CreateCampaign(c))
	require.NoError(t, eng.StartLightning(c.CampaignID))

	got := waitForStatus(t, store, c.CampaignID, campaigns.StatusCompleted)
	assert.Equal(t, campaigns.ModeLightning, got.Mode)
	assert.Equal(t, 153, got.Issued)
	assert.Equal(t, 150, got.PerProjectStats["proj-a"].Issued)
	assert.Equal(t, 3, got.PerProjectStats["proj-b"].Issued)
	// Sub-batches are capped at the lightning size, not the campaign's.
	assert.Equal(t, 3, got.TotalBatches) // ceil(150/100) + ceil(3/100)
	// The confirmed counters belong to the standard path only.
	assert.Zero(t, got.Processed)
	assert.Zero(t, got.Successful)
	assert.Zero(t, got.Failed)
	assert.Equal(t, 153, sender.totalCalls())
	assert.Equal(t, 1, sender.maxCallsPerUser())
}

func TestLightningSecondRunConflicts(t *testing.T) {
	store := memorystore.NewInMemoryCampaignStore()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	sender := newFakeSender()
	sender.fn = func(ctx context.Context, projectID, userID string) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}
	eng := New(store, newFakeSender(), sender, nil, fastConfig())

	c1 := mustCreateCampaign(t, store, map[string][]string{"proj-a": makeUserIDs(5)}, 10, 1)
	c2 := mustCreateCampaign(t, store, map[string][]string{"proj-b": makeUserIDs(5)}, 10, 1)

	require.NoError(t, eng.StartLightning(c1.CampaignID))
	<-entered

	var conflictErr *campaigns.ConflictError
	err := eng.StartLightning(c2.CampaignID)
	require.ErrorAs(t, err, &conflictErr)
	assert.Contains(t, err.Error(), c1.CampaignID)

	// c2 was untouched by the rejected attempt.
	got, err := store.GetCampaign(c2.CampaignID)
	require.NoError(t, err)
	assert.Equal(t, campaigns.StatusPending, got.Status)

	close(release)
	waitForStatus(t, store, c1.CampaignID, campaigns.StatusCompleted)

	// The exclusion lifts once the first run finishes.
	require.NoError(t, eng.StartLightning(c2.CampaignID))
	waitForStatus(t, store, c2.CampaignID, campaigns.StatusCompleted)
}

func TestLightningRunCannotBePaused(t *testing.T) {
	store := memorystore.NewInMemoryCampaignStore()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	sender := newFakeSender()
	sender.fn = func(ctx context.Context, projectID, userID string) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}
	eng := New(store, newFakeSender(), sender, nil, fastConfig())

	c := mustCreateCampaign(t, store, map[string][]string{"proj-a": makeUserIDs(3)}, 10, 1)
	require.NoError(t, eng.StartLightning(c.CampaignID))
	<-entered

	var stateErr *campaigns.InvalidStateError
	require.ErrorAs(t, eng.Pause(c.CampaignID), &stateErr)

	close(release)
	waitForStatus(t, store, c.CampaignID, campaigns.StatusCompleted)
}

func TestLightningRejectsNonPendingCampaign(t *testing.T) {
	store := memorystore.NewInMemoryCampaignStore()
	eng := New(store, newFakeSender(), newFakeSender(), nil, fastConfig())

	c := mustCreateCampaign(t, store, map[string][]string{"proj-a": {"u1"}}, 10, 1)
	require.NoError(t, eng.Start(c.CampaignID))
	waitForStatus(t, store, c.CampaignID, campaigns.StatusCompleted)

	var stateErr *campaigns.InvalidStateError
	require.ErrorAs(t, eng.StartLightning(c.CampaignID), &stateErr)

	var nfErr *campaigns.NotFoundError
	require.ErrorAs(t, eng.StartLightning("missing"), &nfErr)
}

func TestLightningSubBatchSizeOverridesCampaignBatchSize(t *testing.T) {
	store := memorystore.NewInMemoryCampaignStore()
	cfg := fastConfig()
	cfg.Lightning.SubBatchSize = 10
	eng := New(store, newFakeSender(), newFakeSender(), nil, cfg)

	c := mustCreateCampaign(t, store, map[string][]string{"proj-a": makeUserIDs(25)}, 500, 1)
	require.NoError(t, eng.StartLightning(c.CampaignID))

	got := waitForStatus(t, store, c.CampaignID, campaigns.StatusCompleted)
	assert.Equal(t, 3, got.TotalBatches) // ceil(25/10), campaign batchSize 500 ignored
	assert.Equal(t, 25, got.Issued)
}
