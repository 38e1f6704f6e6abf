// Package acl implements the access control list of the encrypted handles.
//
// A grantee authorized on a handle can use it as an operand of a computation
// and ask the gateway for its decryption. The grants are permanent and every
// grantee is authorized on its own.
package acl

import (
	"errors"

	"go.dedis.ch/veilroll/core/access"
	"go.dedis.ch/veilroll/core/store"
	"go.dedis.ch/veilroll/core/store/prefixed"
	"golang.org/x/xerrors"
)

const (
	// Namespace is the prefix of the store keys of the access control list.
	Namespace = "ACL"

	scopeDomain = "fhe"
	scopeUse    = "decrypt"
)

// Manager grants and verifies the rights of identities over handles.
type Manager struct {
	srvc access.Service
}

// NewManager returns a manager that persists the permissions with the given
// access service.
func NewManager(srvc access.Service) Manager {
	return Manager{
		srvc: srvc,
	}
}

// Grant authorizes each of the grantees on the handle. Granting twice the
// same identity is a no-op.
func (m Manager) Grant(snap store.Snapshot, handle []byte, grantees ...access.Identity) error {
	creds := newCredential(handle)
	ns := prefixed.NewSnapshot(Namespace, snap)

	for _, grantee := range grantees {
		err := m.srvc.Grant(ns, creds, grantee)
		if err != nil {
			return xerrors.Errorf("failed to grant %v: %v", grantee, err)
		}
	}

	return nil
}

// IsAuthorized returns true if the grantee has been authorized on the handle.
// An error is returned only when the store fails.
func (m Manager) IsAuthorized(r store.Readable, handle []byte, grantee access.Identity) (bool, error) {
	err := m.srvc.Match(prefixed.NewReadable(Namespace, r), newCredential(handle), grantee)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, access.ErrStoreFailed) {
		return false, xerrors.Errorf("failed to read permission: %v", err)
	}

	return false, nil
}

func newCredential(handle []byte) access.Credential {
	return access.NewHandleCreds(handle, scopeDomain, scopeUse)
}
