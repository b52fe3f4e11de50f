// Package events defines the provisioning event stream: typed records of
// preview and setup-session lifecycle transitions, published for UIs and
// downstream consumers to react to without polling.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a provisioning event.
type EventType string

const (
	// EventTypePreviewCreated indicates a preview finished provisioning
	// and was registered.
	EventTypePreviewCreated EventType = "preview_created"
	// EventTypePreviewFailed indicates CreatePreview failed before
	// registration.
	EventTypePreviewFailed EventType = "preview_failed"
	// EventTypePreviewDestroyed indicates a preview was torn down.
	EventTypePreviewDestroyed EventType = "preview_destroyed"

	// EventTypeStepStarted indicates a setup step began executing.
	EventTypeStepStarted EventType = "step_started"
	// EventTypeStepCompleted indicates a setup step finished.
	EventTypeStepCompleted EventType = "step_completed"
	// EventTypeStepFailed indicates a setup step failed.
	EventTypeStepFailed EventType = "step_failed"

	// EventTypeSessionCompleted indicates all four setup steps are done.
	EventTypeSessionCompleted EventType = "session_completed"
	// EventTypeSessionCancelled indicates the caller abandoned a session.
	EventTypeSessionCancelled EventType = "session_cancelled"
)

// Event is one provisioning lifecycle transition.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// ProjectID is always set; SessionID and Step only for session events.
	ProjectID string `json:"project_id"`
	SessionID string `json:"session_id,omitempty"`
	Step      int    `json:"step,omitempty"`

	// Message is a short human-readable summary.
	Message string `json:"message"`

	// PreviewURL is set on preview_created and session_completed.
	PreviewURL string `json:"preview_url,omitempty"`

	// Error is set on the failure event types.
	Error string `json:"error,omitempty"`
}

// NewPreviewEvent creates a preview lifecycle event.
func NewPreviewEvent(t EventType, projectID, message, previewURL string) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Type:       t,
		Timestamp:  time.Now().UTC(),
		ProjectID:  projectID,
		Message:    message,
		PreviewURL: previewURL,
	}
}

// NewPreviewFailure creates a preview_failed event carrying the error.
func NewPreviewFailure(projectID string, err error) *Event {
	ev := NewPreviewEvent(EventTypePreviewFailed, projectID, "preview provisioning failed", "")
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// NewStepEvent creates a setup-step lifecycle event.
func NewStepEvent(t EventType, projectID, sessionID string, step int, message string) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		ProjectID: projectID,
		SessionID: sessionID,
		Step:      step,
		Message:   message,
	}
}

// NewStepFailure creates a step_failed event carrying the error.
func NewStepFailure(projectID, sessionID string, step int, err error) *Event {
	ev := NewStepEvent(EventTypeStepFailed, projectID, sessionID, step, "setup step failed")
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}
