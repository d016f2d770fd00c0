package domain

const (
	StatusMatched    = "matched"
	StatusNotMatched = "not_matched"
	StatusNotFound   = "not_found"
)

const (
	RunKindPoll     = "poll"
	RunKindScan     = "scan"
	RunKindSnapshot = "snapshot"
	RunKindRefresh  = "refresh"
)

// Failure records why a single entity in a batch could not be processed.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}
