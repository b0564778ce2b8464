package monitoring

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sarchlab/karma/idgen"
)

var progressBarIDs = idgen.NewParallel()

// A ProgressBar tracks how many of a known number of work items, such as
// scenario rounds, are in flight and done.
type ProgressBar struct {
	mu         sync.Mutex
	ID         string
	Name       string
	StartTime  time.Time
	Total      uint64
	Finished   uint64
	InProgress uint64
}

type progressBarJSON struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// MarshalJSON encodes a consistent snapshot of the bar.
func (b *ProgressBar) MarshalJSON() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return json.Marshal(progressBarJSON{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	})
}

// IncrementInProgress marks amount more items as started.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.InProgress += amount
}

// MoveInProgressToFinished marks amount started items as done.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.InProgress -= amount
	b.Finished += amount
}

// Done reports whether every item finished.
func (b *ProgressBar) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.Finished >= b.Total
}
