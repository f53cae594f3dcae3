package middleware

import (
	"errors"

	"github.com/google/uuid"
)

// ValidateID validates a resource id path parameter.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid id format")
	}
	return nil
}
