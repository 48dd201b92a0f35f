package domain

import "github.com/google/uuid"

type PlayerID string

// NewPlayerID issues a fresh session identity. IDs are per-broker, never a
// shared counter.
func NewPlayerID() PlayerID {
	return PlayerID(uuid.NewString())
}
