package lti

import "errors"

var (
	// ErrNoRegistration is returned when the tool configuration has no
	// entry for the requesting platform issuer (or issuer/client pair).
	ErrNoRegistration = errors.New("no tool registration for issuer")

	// ErrValidation is returned when a signed launch message fails
	// verification: bad signature, expired token, wrong audience, unknown
	// deployment, or nonce reuse. Never retried.
	ErrValidation = errors.New("launch validation failed")

	// ErrLaunchNotFound is returned when a launch identifier has no cached
	// claim set (expired or never written).
	ErrLaunchNotFound = errors.New("launch not found in cache")

	// ErrUpstream is returned when a platform service call (grades,
	// roster, token endpoint) fails or answers with an error status.
	ErrUpstream = errors.New("platform service request failed")

	// ErrNoService is returned when a launch lacks the service claim a
	// grade or roster call requires.
	ErrNoService = errors.New("launch does not carry the required service claim")
)
