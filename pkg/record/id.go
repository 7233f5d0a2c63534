package record

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID generates a time-ordered id for a new memory, relationship, or fork
// when the caller doesn't supply one. Using UUIDv7 keeps ids roughly
// correlated with append order, which helps when eyeballing a segment dump.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuidv7: %w", err)
	}

	return id.String(), nil
}
