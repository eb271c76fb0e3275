package service

import (
	"fmt"

	"github.com/covaultio/covault/internal/models"
)

// PermissionRegistry owns the access grants over handles and answers
// whether a subject may use a handle right now.
//
// Revoking a persistent grant is an application-level gate only: a
// cryptographic permission, once issued, may be irrevocable for
// ciphertext already shared out-of-band. A subject who captured
// cleartext before revocation cannot be forced to forget it.
type PermissionRegistry struct{}

// NewPermissionRegistry constructs a PermissionRegistry.
func NewPermissionRegistry() *PermissionRegistry {
	return &PermissionRegistry{}
}

// Grant records a capability for subject on the handle. Granting the
// same (handle, subject, kind) again is a no-op. Grants on unknown
// handles are rejected with ErrUnknownHandle. A transient grant is
// scoped to the running operation and erased at its boundary.
func (p *PermissionRegistry) Grant(st *RegistryState, handleID, subject string, kind models.GrantKind) error {
	if _, ok := st.handles[handleID]; !ok {
		return fmt.Errorf("grant on %s: %w", handleID, models.ErrUnknownHandle)
	}
	key := grantKey{handleID: handleID, subject: subject, kind: kind}
	if _, ok := st.grants[key]; ok {
		return nil
	}
	g := models.Grant{HandleID: handleID, Subject: subject, Kind: kind}
	if kind == models.Transient {
		g.Op = st.opSeq
	}
	st.grants[key] = g
	st.audit("grant_"+string(kind), handleID, subject)
	return nil
}

// SelfGrant records a persistent grant for the owning context itself.
// Without a self-grant a handle is permanently undecryptable by anyone,
// regardless of any other grants.
func (p *PermissionRegistry) SelfGrant(st *RegistryState, handleID string) error {
	return p.Grant(st, handleID, st.Context, models.Persistent)
}

// Revoke clears a persistent grant for subject on the handle going
// forward. This degrades to an application-level gate: it does not
// retract cryptographic access the subject already obtained.
func (p *PermissionRegistry) Revoke(st *RegistryState, handleID, subject string) error {
	if _, ok := st.handles[handleID]; !ok {
		return fmt.Errorf("revoke on %s: %w", handleID, models.ErrUnknownHandle)
	}
	delete(st.grants, grantKey{handleID: handleID, subject: subject, kind: models.Persistent})
	st.audit("revoke", handleID, subject)
	return nil
}

// CanAccess reports whether subject may use or decrypt the handle during
// the current operation. Both conditions must hold: a self-grant exists
// for the handle's owning context, and subject holds a persistent grant
// or a transient grant issued by the running operation.
func (p *PermissionRegistry) CanAccess(st *RegistryState, handleID, subject string) bool {
	if _, ok := st.handles[handleID]; !ok {
		return false
	}
	if _, ok := st.grants[grantKey{handleID: handleID, subject: st.Context, kind: models.Persistent}]; !ok {
		return false
	}
	if _, ok := st.grants[grantKey{handleID: handleID, subject: subject, kind: models.Persistent}]; ok {
		return true
	}
	if g, ok := st.grants[grantKey{handleID: handleID, subject: subject, kind: models.Transient}]; ok {
		return g.Op == st.opSeq
	}
	return false
}
