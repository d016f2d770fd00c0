package dto

import "time"

type PipelineStatusResponseData struct {
	Runs            map[string]*PipelineRunStatus `json:"runs"`
	Authors         int                           `json:"authors"`
	Ledger          PipelineLedgerStatus          `json:"ledger"`
	CacheAvailable  bool                          `json:"cache_available"`
	DatabaseHealthy bool                          `json:"database_healthy"`
	LastUpdated     time.Time                     `json:"last_updated"`
}

type PipelineRunStatus struct {
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Processed  int        `json:"processed"`
	Matched    int        `json:"matched"`
	Failed     int        `json:"failed"`
	Errors     int        `json:"errors"`
}

type PipelineLedgerStatus struct {
	PostsChecked    int `json:"posts_checked"`
	ProfilesChecked int `json:"profiles_checked"`
}
