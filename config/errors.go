package config

import "errors"

var (
	// ErrInvalidPattern indicates an override pattern that does not compile.
	ErrInvalidPattern = errors.New("config: invalid pattern")

	// ErrNilPattern indicates a nil compiled pattern.
	ErrNilPattern = errors.New("config: pattern is nil")

	// ErrInvalidFile indicates a configuration file that parses but is not usable.
	ErrInvalidFile = errors.New("config: invalid file")
)
