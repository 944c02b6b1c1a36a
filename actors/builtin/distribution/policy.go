package distribution

// Bounds on the number of recipients in a single bulk operation.
const (
	MinBatchSize = 1
	MaxBatchSize = 100
)
