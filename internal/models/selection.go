package models

import (
	"time"
)

// SaveState tracks the sync progress of a single selection. It drives UI
// feedback only and is never authoritative.
type SaveState string

const (
	SaveStateIdle    SaveState = "IDLE"
	SaveStateSyncing SaveState = "SYNCING"
	SaveStateSaved   SaveState = "SAVED"
	SaveStateError   SaveState = "ERROR"
)

// Selection is one chosen outcome for one event within the working slip.
// At most one Selection per event id exists in the working set; picking a
// different outcome for the same event replaces the prior Selection.
type Selection struct {
	EventID   string    `json:"event_id"`
	Outcome   string    `json:"outcome"`
	Price     float64   `json:"price"`
	StartsAt  time.Time `json:"starts_at"`
	AddedAt   time.Time `json:"added_at"`
	SaveState SaveState `json:"save_state"`
}

// Valid reports whether the selection's event has not yet started.
func (s Selection) Valid(now time.Time) bool {
	return now.Before(s.StartsAt)
}

// PriceDrift describes one selection whose authoritative price no longer
// matches the locally displayed price.
type PriceDrift struct {
	EventID  string  `json:"event_id"`
	OldPrice float64 `json:"old_price"`
	NewPrice float64 `json:"new_price"`
}
