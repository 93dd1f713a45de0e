package models

import "time"

// EventStatus defines the lifecycle state of a sporting event.
type EventStatus string

const (
	EventStatusScheduled EventStatus = "SCHEDULED"
	EventStatusLive      EventStatus = "LIVE"
	EventStatusFinished  EventStatus = "FINISHED"
)

// Event is the canonical current view of one event as returned by the
// batch event query: status, start time, per-outcome prices and score.
type Event struct {
	ID       string             `json:"id"`
	Status   EventStatus        `json:"status"`
	StartsAt time.Time          `json:"starts_at"`
	Prices   map[string]float64 `json:"prices"`
	Score    string             `json:"score,omitempty"`
}

// PriceSnapshot is a transient per-event capture of authoritative prices
// used for drift checking. Never persisted.
type PriceSnapshot struct {
	EventID   string             `json:"event_id"`
	Prices    map[string]float64 `json:"prices"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// LiveScoreUpdate is one entry of a live-score push frame. Updates replace
// any prior entry for the same event id wholesale; fields are never merged.
type LiveScoreUpdate struct {
	EventID string `json:"event_id"`
	Score   string `json:"score"`
	Clock   string `json:"clock"`
}
