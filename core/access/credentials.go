package access

// HandleCredential is the credential of an encrypted handle. The handle is the
// key of the permission and the scope names the use of the handle that the
// permission allows.
//
// - implements access.Credential
type HandleCredential struct {
	handle []byte
	scope  []string
}

// NewHandleCreds creates the credential of the handle for the scope.
func NewHandleCreds(handle []byte, scope ...string) HandleCredential {
	return HandleCredential{
		handle: handle,
		scope:  scope,
	}
}

// GetID implements access.Credential. It returns a copy of the handle.
func (hc HandleCredential) GetID() []byte {
	return append([]byte{}, hc.handle...)
}

// GetRule implements access.Credential. It returns the compiled scope.
func (hc HandleCredential) GetRule() string {
	return Compile(hc.scope...)
}
