package collector

import "github.com/ternarybob/calbuddy/internal/models"

// Partition splits jobs into contiguous batches, one per worker, preserving
// input order. Batch size is ceil(len(jobs)/workerCount), so the final batch
// may be short and fewer than workerCount batches may be produced.
func Partition(jobs []models.JobMetadata, workerCount int) []models.Batch {
	if len(jobs) == 0 {
		return nil
	}
	if workerCount < 1 {
		workerCount = 1
	}

	size := max(1, (len(jobs)+workerCount-1)/workerCount)
	batches := make([]models.Batch, 0, (len(jobs)+size-1)/size)

	for start := 0; start < len(jobs); start += size {
		end := min(start+size, len(jobs))
		batches = append(batches, models.Batch{
			Index: len(batches),
			Jobs:  jobs[start:end:end],
		})
	}

	return batches
}
