package config

import "errors"

var (
	// ErrInvalidConfig is returned when a configuration document cannot be decoded or holds impossible values.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingCookie is returned when the upstream account cookie is empty.
	ErrMissingCookie = errors.New("monica cookie is required")

	// ErrMissingBearerToken is returned when the proxy API key is empty.
	ErrMissingBearerToken = errors.New("api key is required")

	// ErrMissingBotUID is returned when custom bot mode is enabled without a bot UID.
	ErrMissingBotUID = errors.New("bot uid is required in custom bot mode")
)
