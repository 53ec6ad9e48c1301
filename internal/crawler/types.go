package crawler

import "time"

// QueueItem is a law waiting to be processed.
type QueueItem struct {
	ID        string
	TitleHint string
	Depth     int
}

// ItemState is the outcome of processing a QueueItem.
type ItemState string

// Item states. Every item starts Pending and ends in one of the others.
const (
	StatePending         ItemState = "pending"
	StateSkippedExisting ItemState = "skipped_existing"
	StateFetched         ItemState = "fetched"
	StateDropped         ItemState = "dropped"
)

// Summary describes a finished or aborted run.
type Summary struct {
	RunID  string `json:"run_id"`
	RootID string `json:"root_id"`
	// Order lists processed (not dropped) law IDs in visit order.
	Order   []string `json:"order"`
	Fetched int      `json:"fetched"`
	Skipped int      `json:"skipped"`
	Dropped int      `json:"dropped"`
	// Recorded counts unresolved records collected in this run; Unresolved
	// counts those that were new to the durable log.
	Recorded   int           `json:"recorded"`
	Unresolved int           `json:"unresolved"`
	Registered int           `json:"registered"`
	Duration   time.Duration `json:"duration"`
}
