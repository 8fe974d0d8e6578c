package testutil

import (
	"time"

	"github.com/skosovsky/reactor"
)

// NewTestRegistry registers tools on a registry that recovers panics and gives each
// call up to ten seconds. It panics when a tool is rejected.
func NewTestRegistry(tools ...reactor.Tool) *reactor.Registry {
	reg := reactor.NewRegistry(
		reactor.WithRecoverPanics(true),
		reactor.WithDefaultTimeout(10*time.Second),
	)
	reg.MustRegister(tools...)
	return reg
}
