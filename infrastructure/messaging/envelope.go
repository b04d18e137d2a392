package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"txwizard/domain/wizard"
)

// Envelope is the wire form of a wizard event. Routing metadata sits
// next to the state payload so consumers can filter without decoding it.
type Envelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	WizardID  string            `json:"wizard_id"`
	Flow      string            `json:"flow"`
	Version   int               `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
}

// Encode serializes ev with the producing service recorded in metadata.
func Encode(ev wizard.Event, source string) ([]byte, error) {
	payload, err := json.Marshal(ev.State)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize state: %w", err)
	}
	env := Envelope{
		EventID:   ev.EventID,
		EventType: string(ev.Type),
		WizardID:  ev.WizardID,
		Flow:      ev.Flow,
		Version:   ev.Version,
		Timestamp: ev.Timestamp,
		Payload:   payload,
	}
	if source != "" {
		env.Metadata = map[string]string{"source": source}
	}
	return json.Marshal(env)
}

// Decode is the inverse of Encode.
func Decode(body []byte) (wizard.Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return wizard.Event{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.EventID == "" || env.EventType == "" {
		return wizard.Event{}, errors.New("envelope is missing event id or type")
	}
	ev := wizard.Event{
		EventID:   env.EventID,
		WizardID:  env.WizardID,
		Flow:      env.Flow,
		Type:      wizard.EventType(env.EventType),
		Version:   env.Version,
		Timestamp: env.Timestamp,
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &ev.State); err != nil {
			return wizard.Event{}, fmt.Errorf("failed to decode state: %w", err)
		}
	}
	return ev, nil
}
