// Package config resolves per-target instrumentation settings.
//
// A Resolver holds global defaults plus an ordered list of overrides keyed by host
// patterns. Resolve picks the first override whose pattern matches the target host and
// fills any field the override leaves unset from the defaults.
//
// Overrides can be registered in code with Describe, or loaded from YAML with LoadFile
// and applied with (*File).Apply. Error handlers can only be set in code.
package config
