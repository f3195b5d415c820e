package models

import "time"

// Participant is a person taking part in the gift exchange.
// Names are unique among participants regardless of case.
type Participant struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	HasReceivedMatch bool   `json:"hasReceivedMatch"`
}

// Match is a committed pairing of a giver with a receiver.
// Timestamp is the instant the pairing was first confirmed.
type Match struct {
	Giver     string    `json:"giver"`
	Receiver  string    `json:"receiver"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingMatch is a drawn pairing that has not been confirmed or cancelled yet.
type PendingMatch struct {
	Giver    string `json:"giver"`
	Receiver string `json:"receiver"`
}

// Pools holds the participants still able to give and to receive.
type Pools struct {
	AvailableGivers    []Participant `json:"availableGivers"`
	AvailableReceivers []Participant `json:"availableReceivers"`
}

// Phase summarises how far along the exchange is.
type Phase string

const (
	PhaseEmpty    Phase = "empty"     // no participants yet
	PhaseNeedMore Phase = "need_more" // a single participant cannot draw
	PhaseDrawing  Phase = "drawing"
	PhaseComplete Phase = "complete" // every giver has a receiver
)

// Status is the summary shown above the participant list.
type Status struct {
	Phase      Phase `json:"phase"`
	Remaining  int   `json:"remaining"` // givers who still need to draw
	Total      int   `json:"total"`
	NeedsReset bool  `json:"needsReset"`
}

// Backup is the exported snapshot of a group's state.
type Backup struct {
	Participants []Participant `json:"participants"`
	Matches      []Match       `json:"matches"`
}
