package ws

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	EventRankingUpdated   = "ranking_updated"
	EventPipelineFinished = "pipeline_finished"
)

type RankingUpdatedEvent struct {
	Type      string `json:"type"`
	Guild     string `json:"guild"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

type PipelineFinishedEvent struct {
	Type      string `json:"type"`
	Kind      string `json:"kind"`
	RunID     string `json:"runId,omitempty"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (h *Hub) publish(evt any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).Warn("[WS] event encode failed")
		return
	}
	h.Broadcast(b)
}

// RankingUpdated tells clients that stored rankings for guild changed.
func (h *Hub) RankingUpdated(guild, source string) {
	guild = strings.TrimSpace(guild)
	if guild == "" {
		return
	}
	h.publish(RankingUpdatedEvent{Type: EventRankingUpdated, Guild: guild, Source: source, Timestamp: now()})
}

func (h *Hub) PipelineFinished(kind, runID, status string) {
	h.publish(PipelineFinishedEvent{Type: EventPipelineFinished, Kind: kind, RunID: runID, Status: status, Timestamp: now()})
}
