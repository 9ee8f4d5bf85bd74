package token

import "errors"

var (
	// ErrExpiredToken indicates the token is past its expiry claim.
	ErrExpiredToken = errors.New("token: expired")
	// ErrMalformedToken indicates a bad signature or unparseable claims.
	ErrMalformedToken = errors.New("token: malformed")
	// ErrAudienceMismatch indicates the token was minted for another audience.
	ErrAudienceMismatch = errors.New("token: audience mismatch")
	// ErrMissingScope indicates a required scope is absent from the token.
	ErrMissingScope = errors.New("token: missing scope")
)
