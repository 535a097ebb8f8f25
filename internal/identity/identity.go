// Package identity verifies bearer credentials and resolves them into a
// caller identity with a role set. Verification is a pure computation; no
// stores are consulted on the hot path.
package identity

import "time"

// Identity is the resolved caller for one request. Immutable once produced.
type Identity struct {
	Subject   string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether the identity carries the given role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
