// File: backend/internal/campaigns/models_test.go
package campaigns

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCampaignValid(t *testing.T) {
	c, err := NewCampaign("Q3 reset wave", []string{"proj-a", "proj-b"}, map[string][]string{
		"proj-a": {"u1", "u2", "u3"},
		"proj-b": {"u4"},
	}, 50, 5, "branded")
	require.NoError(t, err)

	assert.NotEmpty(t, c.CampaignID)
	assert.Equal(t, "Q3 reset wave", c.CampaignName)
	assert.Equal(t, ModeStandard, c.Mode)
	assert.Equal(t, StatusPending, c.Status)
	assert.Equal(t, []string{"proj-a", "proj-b"}, c.ProjectIDs)
	assert.Equal(t, 4, c.TotalUsers())
	assert.Equal(t, "branded", c.Template)
	require.Contains(t, c.PerProjectStats, "proj-a")
	require.Contains(t, c.PerProjectStats, "proj-b")
	assert.Zero(t, c.Processed)
	assert.False(t, c.CreatedAt.IsZero())
	assert.Nil(t, c.StartedAt)
}

func TestNewCampaignValidation(t *testing.T) {
	users := map[string][]string{"proj-a": {"u1"}}

	cases := []struct {
		name        string
		projectIDs  []string
		users       map[string][]string
		batchSize   int
		workerCount int
	}{
		{"batch size too small", []string{"proj-a"}, users, 0, 5},
		{"batch size too large", []string{"proj-a"}, users, MaxBatchSize + 1, 5},
		{"worker count too small", []string{"proj-a"}, users, 50, 0},
		{"worker count too large", []string{"proj-a"}, users, 50, MaxWorkerCount + 1},
		{"no projects", nil, users, 50, 5},
		{"empty project ID", []string{""}, users, 50, 5},
		{"no users selected", []string{"proj-a"}, map[string][]string{"proj-a": {}}, 50, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCampaign("c", tc.projectIDs, tc.users, tc.batchSize, tc.workerCount, "")
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}
}

func TestNewCampaignDedupesPreservingOrder(t *testing.T) {
	c, err := NewCampaign("c", []string{"proj-a", "proj-a", "proj-b"}, map[string][]string{
		"proj-a": {"u1", "u2", "u1", "", "u3", "u2"},
		"proj-b": {"u9"},
	}, 10, 2, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"proj-a", "proj-b"}, c.ProjectIDs)
	assert.Equal(t, []string{"u1", "u2", "u3"}, c.SelectedUsers["proj-a"])
	assert.Equal(t, 4, c.TotalUsers())
}

func TestAppendErrorRotation(t *testing.T) {
	c := &Campaign{Errors: []string{}}
	for i := 0; i < MaxErrorLogEntries+25; i++ {
		c.AppendError(fmt.Sprintf("failure %d", i))
	}
	require.Len(t, c.Errors, MaxErrorLogEntries)
	assert.Equal(t, "failure 25", c.Errors[0])
	assert.Equal(t, fmt.Sprintf("failure %d", MaxErrorLogEntries+24), c.Errors[len(c.Errors)-1])
}

func TestSnapshotIsIndependent(t *testing.T) {
	c, err := NewCampaign("c", []string{"proj-a"}, map[string][]string{"proj-a": {"u1", "u2"}}, 10, 2, "")
	require.NoError(t, err)

	snap := c.Snapshot()
	c.Processed = 7
	c.PerProjectStats["proj-a"].Successful = 7
	c.SelectedUsers["proj-a"][0] = "mutated"
	c.AppendError("late failure")

	assert.Zero(t, snap.Processed)
	assert.Zero(t, snap.PerProjectStats["proj-a"].Successful)
	assert.Equal(t, "u1", snap.SelectedUsers["proj-a"][0])
	assert.Empty(t, snap.Errors)
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}
