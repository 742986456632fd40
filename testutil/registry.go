package testutil

import (
	"time"

	"github.com/skosovsky/toolloop"
)

// NewTestRegistry returns a Registry with long timeout and panic recovery enabled,
// suitable for tests. It panics if a tool cannot be registered.
func NewTestRegistry(tools ...toolloop.Tool) *toolloop.Registry {
	reg := toolloop.NewRegistry(
		toolloop.WithDefaultTimeout(30*time.Second),
		toolloop.WithRecoverPanics(true),
	)
	reg.MustRegister(tools...)
	return reg
}
