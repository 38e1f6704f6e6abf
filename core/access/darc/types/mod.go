// Package types implements the permissions stored by the darc service.
//
// A permission maps a rule to the groups of identities allowed by it. The
// package is separated from the service so that the formats can import it.
package types

import (
	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/serde"
)

// Permission is the set of rules attached to a credential.
type Permission interface {
	serde.Message

	// Allow adds the group to the rule. The group matches only as a whole,
	// so that a group of a single identity is enough for that identity.
	Allow(rule string, group ...access.Identity)

	// Match returns nil when the group, or a subset of it, is allowed by the
	// rule.
	Match(rule string, group ...access.Identity) error
}

// PermissionFactory deserializes the permissions.
type PermissionFactory interface {
	serde.Factory

	PermissionOf(serde.Context, []byte) (Permission, error)
}
