// Package access defines the interfaces for the Access Rights Control.
package access

import (
	"encoding"
	"strings"

	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/serde"
	"golang.org/x/xerrors"
)

// ErrStoreFailed is wrapped by the errors of a service when the store cannot
// be read or written, so that a caller can tell them apart from a denial.
var ErrStoreFailed = xerrors.New("store failed")

// Identity is an abstraction to uniquely identify a signer.
type Identity interface {
	serde.Message
	encoding.TextMarshaler

	// Equal returns true when both identities are the same.
	Equal(other interface{}) bool
}

// Credential is the abstraction of the object to which a rule is attached.
type Credential interface {
	// GetID returns the identifier of the object, which is also the key of the
	// permission in the store.
	GetID() []byte

	// GetRule returns the rule that the identities must satisfy.
	GetRule() string
}

// Service is the access control service that persists the permissions in a
// store.
type Service interface {
	// Match returns nil if the group of identities, or a subset of it, is
	// allowed by the rule of the credential, otherwise an error explaining the
	// reason.
	Match(store store.Readable, creds Credential, idents ...Identity) error

	// Grant allows the group of identities, as a single entity, to the rule
	// of the credential.
	Grant(store store.Snapshot, creds Credential, idents ...Identity) error
}

// Compile returns a compacted rule from the string segments.
func Compile(segments ...string) string {
	return strings.Join(segments, ":")
}
