// Package guard gates privileged dashboard commands behind the shared
// dashboard password.
package guard

import "crypto/subtle"

// Guard checks secrets against the password configured at startup.
type Guard struct {
	password []byte
}

// New returns a Guard for password.
func New(password string) *Guard {
	return &Guard{password: []byte(password)}
}

// Check reports whether secret matches the dashboard password.
func (g *Guard) Check(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(secret), g.password) == 1
}

// Allowed is the gate every privileged command passes through.
func (g *Guard) Allowed(authenticated bool) bool {
	return authenticated
}

// CheckBearer validates an "Authorization: Bearer <password>" header value.
func (g *Guard) CheckBearer(header string) bool {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	return g.Check(header[len(prefix):])
}
