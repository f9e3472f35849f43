// Package uuid generates the identifiers storemill uses for worker attempts
// and scratch files.
package uuid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a new random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

// NewWithoutDashes returns a new random UUID with the dashes removed.  Scratch
// file names use this form so that the separator characters in artifact names
// remain unambiguous.
func NewWithoutDashes() string {
	return strings.ReplaceAll(New(), "-", "")
}
