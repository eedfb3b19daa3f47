// Package ident generates collision-resistant identifiers for sessions
// and messages.
package ident

import "github.com/google/uuid"

// New returns a random identifier. Entropy comes from crypto/rand via
// the uuid package, so collisions are negligible over the lifetime of
// any realistic deployment.
func New() string {
	return uuid.NewString()
}
