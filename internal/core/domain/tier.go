package domain

// TierStatus tags the outcome of one cascade tier.
type TierStatus string

const (
	TierFound TierStatus = "found"
	TierEmpty TierStatus = "empty"
	TierError TierStatus = "error"
)

type SelectionMode string

const (
	SelectionDomainFilter SelectionMode = "domain_filter"
	SelectionTopByScore   SelectionMode = "top_by_score"
)

type VectorResult struct {
	Status TierStatus
	Best   VectorHit
	Exact  bool
	Err    error
}

type ManagedResult struct {
	Status         TierStatus
	Items          []SearchHit
	AllURLs        []string
	Mode           SelectionMode
	AggregateScore float64
	Err            error
}

// Contents returns the selected item texts in selection order.
func (r ManagedResult) Contents() []string {
	out := make([]string, 0, len(r.Items))
	for _, item := range r.Items {
		out = append(out, item.RawContent)
	}
	return out
}

type FallbackResult struct {
	Status      TierStatus
	Chunks      []ContentChunk
	SourceSites []SourceSite
	// Reason is set when Status is TierEmpty or TierError.
	Reason NoInfoReason
	Err    error
}
