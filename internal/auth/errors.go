package auth

import "errors"

var (
	// ErrMalformedToken indicates the credential is not even JWT-shaped.
	// It is rejected before any cryptographic verification.
	ErrMalformedToken = errors.New("auth: malformed token")
	// ErrInvalidToken indicates the token failed verification. The reason is
	// not surfaced across the trust boundary.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrForbidden indicates the verified identity may not perform the action.
	ErrForbidden = errors.New("auth: forbidden")
)
