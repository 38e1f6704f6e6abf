// Package registry defines the format registry mechanism.
//
// Each message family owns a registry where the format packages register their
// engine at initialization. Looking up an unknown format never returns nil but
// an engine that fails with a meaningful error.
package registry

import (
	"go.dedis.ch/veilroll/serde"
)

// Registry is an interface to register and get format engines for a specific
// format.
type Registry interface {
	// Register takes a format and its engine and it registers them so that the
	// engine can be looked up later.
	Register(serde.Format, serde.FormatEngine)

	// Get returns the engine associated with the format.
	Get(serde.Format) serde.FormatEngine
}
