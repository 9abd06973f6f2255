package domain

// FilterSource records which cascade stage decided an item's tier.
type FilterSource string

const (
	FilterSourceExpired  FilterSource = "expired"  // age expiration, no calls made
	FilterSourceFiltered FilterSource = "filtered" // cheap relevance filter
	FilterSourceLLM      FilterSource = "llm"      // full tiered grading
)

// ClassificationResult is the enrichment record for a high-priority item.
// At most one exists per item; retries upsert rather than append.
type ClassificationResult struct {
	ItemID       string
	Tier         Tier
	Summary      string
	Keywords     []string
	Embedding    []float32
	Translation  string
	LatencyMs    int64
	FilterSource FilterSource
}
