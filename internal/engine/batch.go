// File: backend/internal/engine/batch.go
package engine

// Batch is an ordered, bounded slice of one project's selected user IDs.
// Batches for one project are dispatched strictly in sequence; the final
// batch may be shorter than the configured batch size.
type Batch struct {
	ProjectID string
	UserIDs   []string
	// Index is the zero-based position of this batch within its project.
	Index int
}

// PartitionUsers splits a project's ordered user IDs into batches of at most
// batchSize, preserving order. It is a pure partitioning step: no retries, no
// reordering, every ID appears exactly once. An empty selection yields zero
// batches.
func PartitionUsers(projectID string, userIDs []string, batchSize int) []Batch {
	if batchSize <= 0 || len(userIDs) == 0 {
		return nil
	}
	batches := make([]Batch, 0, (len(userIDs)+batchSize-1)/batchSize)
	for start := 0; start < len(userIDs); start += batchSize {
		end := start + batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}
		batches = append(batches, Batch{
			ProjectID: projectID,
			UserIDs:   userIDs[start:end],
			Index:     len(batches),
		})
	}
	return batches
}

// TotalBatchCount sums the batch counts across projects for the given batch
// size, matching ceil(len(users)/batchSize) per project.
func TotalBatchCount(selections map[string][]string, batchSize int) int {
	if batchSize <= 0 {
		return 0
	}
	total := 0
	for _, userIDs := range selections {
		total += (len(userIDs) + batchSize - 1) / batchSize
	}
	return total
}
