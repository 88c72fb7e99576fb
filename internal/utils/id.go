package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateID generates a unique ID for requests
func GenerateID() string {
	return uuid.NewString()
}

// ChildID derives the ID of the i-th item of a batch.
func ChildID(parent string, i int) string {
	return fmt.Sprintf("%s_q_%03d", parent, i)
}
