package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string
func GenerateID() string {
	return uuid.New().String()
}

// ShortID returns an 8 character id, good enough to tell log lines apart
func ShortID() string {
	return uuid.New().String()[:8]
}
