// Package gen provides utility functions for generating values.
package gen

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	sep      = "|"
	shortLen = 8
)

// NewID returns a random task identifier.
func NewID() string {
	return uuid.NewString()
}

// Key joins a and b with the key separator.
func Key(a, b string) string {
	return fmt.Sprintf("%s%s%s", a, sep, b)
}

// UUIDv5 returns a deterministic identifier for the pair a, b.
func UUIDv5(a, b string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(Key(a, b))).String()
}

// Short returns the leading part of an identifier for display.
func Short(id string) string {
	if len(id) <= shortLen {
		return id
	}

	return id[:shortLen]
}
