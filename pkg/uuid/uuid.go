package uuid

import (
	"github.com/google/uuid"
)

// New generates a new UUID v4
func New() string {
	return uuid.New().String()
}

// NewIdempotencyKey returns a key scoped to one frozen submission of a wizard.
// Every freeze gets a fresh key, retries of the same freeze reuse it.
func NewIdempotencyKey(wizardID string) string {
	return "submit-" + wizardID + "-" + uuid.New().String()
}
