package model

import "time"

// Event types published by the generation pipeline, in this order:
// progress/snapshot/warning interleaved, then exactly one of done or error.
const (
	EventProgress = "progress"
	EventSnapshot = "snapshot"
	EventWarning  = "warning"
	EventError    = "error"
	EventDone     = "done"
)

type GenerationEvent struct {
	Type         string              `json:"type"`
	Progress     *GenerationProgress `json:"progress,omitempty"`
	Presentation *Presentation       `json:"presentation,omitempty"`
	SlideIndex   *int                `json:"slide_index,omitempty"`
	Kind         string              `json:"kind,omitempty"`
	Message      string              `json:"message,omitempty"`
	Timestamp    int64               `json:"timestamp"`
}

func NewEvent(eventType string) GenerationEvent {
	return GenerationEvent{Type: eventType, Timestamp: time.Now().Unix()}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type RetryResponse struct {
	Presentation *Presentation `json:"presentation"`
	Warning      string        `json:"warning,omitempty"`
}

type StatusResponse struct {
	State       string `json:"state"`
	LastOutcome string `json:"last_outcome,omitempty"`
	Busy        bool   `json:"busy"`
}
