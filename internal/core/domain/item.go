package domain

import "time"

// ItemState tracks an item's progress through the classification pipeline.
type ItemState string

const (
	ItemStatePending    ItemState = "pending"
	ItemStateProcessing ItemState = "processing"
	ItemStateCompleted  ItemState = "completed"
	ItemStateFailed     ItemState = "failed"
	ItemStateSkipped    ItemState = "skipped"
)

// Terminal reports whether the state is final. Terminal items are never
// re-enqueued by the core.
func (s ItemState) Terminal() bool {
	return s == ItemStateCompleted || s == ItemStateFailed || s == ItemStateSkipped
}

// Item is a harvested document. The ID is assigned by the external source
// and is globally unique; uniqueness is enforced at the storage boundary.
type Item struct {
	ID          string
	Author      string
	Content     string
	PublishedAt time.Time
	FetchedAt   time.Time
	URL         string
	MediaRefs   []string
	State       ItemState
}
