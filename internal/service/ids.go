package service

import "github.com/google/uuid"

// IDGenerator mints identifiers for fragments, conversations and messages.
// Tests substitute a deterministic sequence.
type IDGenerator interface {
	NewString() string
}

// randomIDs mints version 4 UUIDs.
type randomIDs struct{}

func (randomIDs) NewString() string { return uuid.NewString() }
