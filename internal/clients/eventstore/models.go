package eventstore

import "time"

// Event is the wire representation of a stored event.
type Event struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Description     string    `json:"description,omitempty"`
	Location        string    `json:"location,omitempty"`
	NotifyBeforeMin *int      `json:"notify_before_min,omitempty"`
}

// EventRequest is the payload for create and update calls.
type EventRequest struct {
	Title           string    `json:"title"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Description     string    `json:"description,omitempty"`
	Location        string    `json:"location,omitempty"`
	OwnerID         int64     `json:"owner_id"`
	NotifyBeforeMin *int      `json:"notify_before_min,omitempty"`
}

// MutationResponse is the body returned by create, update and delete calls.
// Success may be false on a 2xx response; that is a business-level outcome,
// not a transport failure.
type MutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	ID      *int64 `json:"id,omitempty"`
}
