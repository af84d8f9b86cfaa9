// File: backend/internal/engine/batch_test.go
package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionUsersEvenSplit(t *testing.T) {
	users := makeUserIDs(250)
	batches := PartitionUsers("proj-a", users, 50)

	require.Len(t, batches, 5)
	for i, b := range batches {
		assert.Equal(t, "proj-a", b.ProjectID)
		assert.Equal(t, i, b.Index)
		assert.Len(t, b.UserIDs, 50)
	}
}

func TestPartitionUsersShortFinalBatch(t *testing.T) {
	batches := PartitionUsers("proj-a", makeUserIDs(105), 50)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0].UserIDs, 50)
	assert.Len(t, batches[1].UserIDs, 50)
	assert.Len(t, batches[2].UserIDs, 5)
}

func TestPartitionUsersCompleteAndOrdered(t *testing.T) {
	users := makeUserIDs(103)
	batches := PartitionUsers("proj-a", users, 7)

	var flattened []string
	for _, b := range batches {
		flattened = append(flattened, b.UserIDs...)
	}
	// Every ID exactly once, in the original order.
	assert.Equal(t, users, flattened)
}

func TestPartitionUsersEdgeCases(t *testing.T) {
	assert.Nil(t, PartitionUsers("proj-a", nil, 50))
	assert.Nil(t, PartitionUsers("proj-a", []string{}, 50))
	assert.Nil(t, PartitionUsers("proj-a", makeUserIDs(3), 0))

	single := PartitionUsers("proj-a", makeUserIDs(3), 500)
	require.Len(t, single, 1)
	assert.Len(t, single[0].UserIDs, 3)
}

func TestTotalBatchCount(t *testing.T) {
	selections := map[string][]string{
		"proj-a": makeUserIDs(250),
		"proj-b": makeUserIDs(101),
		"proj-c": nil,
	}
	assert.Equal(t, 5+3+0, TotalBatchCount(selections, 50))
	assert.Equal(t, 0, TotalBatchCount(selections, 0))
}

func makeUserIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%03d", i)
	}
	return ids
}
