package models

import (
	"time"

	"github.com/google/uuid"
)

// DraftStatus defines the status of a server-side slip draft.
type DraftStatus string

const (
	DraftStatusOpen      DraftStatus = "OPEN"
	DraftStatusSubmitted DraftStatus = "SUBMITTED"
	DraftStatusExpired   DraftStatus = "EXPIRED"
)

// DraftSelection is the server's view of one selection inside a draft.
type DraftSelection struct {
	EventID string  `json:"event_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
}

// Draft represents the server-side mutable slip resource.
type Draft struct {
	ID         uuid.UUID        `json:"id"`
	Status     DraftStatus      `json:"status"`
	Selections []DraftSelection `json:"selections"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// PatchAction defines the kind of mutation applied to a draft.
type PatchAction string

const (
	PatchActionAdd    PatchAction = "add"
	PatchActionRemove PatchAction = "remove"
	PatchActionUpdate PatchAction = "update"
)

// DraftPatch is a single mutation against a draft resource.
type DraftPatch struct {
	Action  PatchAction `json:"action"`
	EventID string      `json:"event_id"`
	Outcome string      `json:"outcome,omitempty"`
	Price   float64     `json:"price,omitempty"`
}

// LockedSelection is a selection inside a submitted record. LockedPrice is
// the price the server committed to at submission, distinct from whatever
// price was displayed locally beforehand.
type LockedSelection struct {
	EventID     string  `json:"event_id"`
	Outcome     string  `json:"outcome"`
	LockedPrice float64 `json:"locked_price"`
}

// SubmittedRecord is the immutable result of a successful submission.
type SubmittedRecord struct {
	ID         uuid.UUID         `json:"id"`
	PlacedAt   time.Time         `json:"placed_at"`
	Selections []LockedSelection `json:"selections"`
}

// BetRecord is a locally cached placed-bet record, refetched in the
// background when a settlement notification arrives for its event.
type BetRecord struct {
	ID        uuid.UUID `json:"id"`
	EventID   string    `json:"event_id"`
	Outcome   string    `json:"outcome"`
	Price     float64   `json:"price"`
	Settled   bool      `json:"settled"`
	Won       *bool     `json:"won,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
