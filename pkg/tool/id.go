package tool

import "github.com/google/uuid"

// GenerateUUIDV7 returns a time-ordered UUID. Attempt history relies on v7
// ids sorting newest-first under a descending primary-key index.
func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}
