// ABOUTME: Client-side handling of the externally issued credential token
// ABOUTME: Screens JWT expiry before dialing so stale tokens fail fast

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential errors
var (
	ErrEmptyToken   = errors.New("credential token is empty")
	ErrTokenExpired = errors.New("credential token expired")

	// ErrAuthRejected marks an authentication failure signalled by the
	// backend. It is fatal at this layer: the caller must obtain a
	// fresh credential before reconnecting.
	ErrAuthRejected = errors.New("authentication rejected")
)

// Credential wraps the token issued by the external login service.
// This layer never signs or verifies tokens; it only carries them and
// screens obviously expired ones before the transport dials.
type Credential struct {
	token string
}

// NewCredential wraps an externally issued token.
func NewCredential(token string) *Credential {
	return &Credential{token: token}
}

// Token returns the raw token for the authentication frame.
func (c *Credential) Token() string {
	return c.token
}

// Validate checks that the token is present and, when it is a JWT,
// that it has not expired as of now. Opaque (non-JWT) tokens pass:
// signature and semantic validation belong to the backend.
func (c *Credential) Validate(now time.Time) error {
	if c.token == "" {
		return ErrEmptyToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		// Not a JWT: nothing to screen locally.
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if exp.Before(now) {
		return fmt.Errorf("%w (expired %s)", ErrTokenExpired, exp.Format(time.RFC3339))
	}
	return nil
}
