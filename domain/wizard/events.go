package wizard

import "time"

// EventType names a lifecycle change of a wizard instance.
type EventType string

const (
	EventFieldSet            EventType = "wizard.field_set"
	EventStepAdvanced        EventType = "wizard.step_advanced"
	EventStepRejected        EventType = "wizard.step_rejected"
	EventSteppedBack         EventType = "wizard.stepped_back"
	EventConfirmationReached EventType = "wizard.confirmation_reached"
	EventSubmissionBlocked   EventType = "wizard.submission_blocked"
	EventSubmissionStarted   EventType = "wizard.submission_started"
	EventSubmissionSucceeded EventType = "wizard.submission_succeeded"
	EventSubmissionFailed    EventType = "wizard.submission_failed"
	EventRestarted           EventType = "wizard.restarted"
)

// Event is delivered to listeners after every state change. Version grows
// by one per event of the same wizard.
type Event struct {
	EventID   string    `json:"event_id"`
	WizardID  string    `json:"wizard_id"`
	Flow      string    `json:"flow"`
	Type      EventType `json:"event_type"`
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	State     State     `json:"state"`
}

// Listener receives events in order. It runs on the goroutine that caused
// the change and must not call mutating Machine methods.
type Listener func(Event)
