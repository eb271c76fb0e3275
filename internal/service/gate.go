package service

import (
	"fmt"

	"github.com/covaultio/covault/internal/engine"
	"github.com/covaultio/covault/internal/models"
)

// AccessGate composes a condition handle with a value handle into a new
// handle that reveals the value only if the condition holds, and
// attaches the right grant to the result. The condition stays encrypted:
// nothing about it leaks from which code path executed.
type AccessGate struct {
	store    *HandleStore
	registry *PermissionRegistry
	engine   engine.Engine
}

// NewAccessGate constructs an AccessGate.
func NewAccessGate(store *HandleStore, registry *PermissionRegistry, eng engine.Engine) *AccessGate {
	return &AccessGate{store: store, registry: registry, engine: eng}
}

// SelectIf derives the handle of select(cond, a, b): the value behind a
// if the encrypted condition is true, the value behind b otherwise. The
// condition handle must be boolean-typed and the owning context must
// hold self-grants on all three inputs. The result carries a's type tag
// and no grants; granting is the caller's explicit decision.
func (g *AccessGate) SelectIf(st *RegistryState, condID, trueID, falseID string) (models.Handle, error) {
	condTag, err := g.store.TypeTagOf(st, condID)
	if err != nil {
		return models.Handle{}, fmt.Errorf("select: %w", err)
	}
	if condTag != models.TypeBool {
		return models.Handle{}, fmt.Errorf("select: condition handle is %s, want %s", condTag, models.TypeBool)
	}
	trueTag, err := g.store.TypeTagOf(st, trueID)
	if err != nil {
		return models.Handle{}, fmt.Errorf("select: %w", err)
	}
	if _, err := g.store.TypeTagOf(st, falseID); err != nil {
		return models.Handle{}, fmt.Errorf("select: %w", err)
	}
	for _, id := range []string{condID, trueID, falseID} {
		if !g.registry.CanAccess(st, id, st.Context) {
			return models.Handle{}, fmt.Errorf("select: no self-grant on %s: %w", id, models.ErrAuthorization)
		}
	}
	handle, err := g.store.Derive(st, engine.OpSelect, trueTag, condID, trueID, falseID)
	if err != nil {
		return models.Handle{}, fmt.Errorf("select: %w", err)
	}
	return handle, nil
}

// GuardedRead gives subject a handle that decrypts to the protected
// value if the condition holds and to a neutral zero otherwise. It
// composes SelectIf with a fresh neutral handle, self-grants the result,
// and issues a grant of the requested kind to subject.
//
// Transient is the default for ad hoc reads. A persistent guarded read
// additionally records a PersistentAccessRecord for subject on the
// protected value, the soft gate ReadPersistent consults later.
func (g *AccessGate) GuardedRead(st *RegistryState, valueID, condID, subject string, kind models.GrantKind) (models.Handle, error) {
	valueTag, err := g.store.TypeTagOf(st, valueID)
	if err != nil {
		return models.Handle{}, fmt.Errorf("guarded read: %w", err)
	}

	neutral, err := g.neutralHandle(st, valueTag)
	if err != nil {
		return models.Handle{}, fmt.Errorf("guarded read: %w", err)
	}

	out, err := g.SelectIf(st, condID, valueID, neutral.ID)
	if err != nil {
		return models.Handle{}, fmt.Errorf("guarded read: %w", err)
	}
	if err := g.registry.SelfGrant(st, out.ID); err != nil {
		return models.Handle{}, fmt.Errorf("guarded read: %w", err)
	}
	if err := g.registry.Grant(st, out.ID, subject, kind); err != nil {
		return models.Handle{}, fmt.Errorf("guarded read: %w", err)
	}

	if kind == models.Persistent {
		if st.persistent[valueID] == nil {
			st.persistent[valueID] = make(map[string]bool)
		}
		st.persistent[valueID][subject] = true
	}
	return out, nil
}

// ReadPersistent is the gated long-lived read path: it refuses unless
// subject's PersistentAccessRecord for the protected value is still on,
// then performs a persistent guarded read. Flipping the record off with
// SetPersistentAccess blocks this path even though previously issued
// cryptographic grants remain valid for handles already shared.
func (g *AccessGate) ReadPersistent(st *RegistryState, valueID, condID, subject string) (models.Handle, error) {
	if !st.persistent[valueID][subject] {
		return models.Handle{}, fmt.Errorf("persistent read of %s: %w", valueID, models.ErrAuthorization)
	}
	return g.GuardedRead(st, valueID, condID, subject, models.Persistent)
}

// SetPersistentAccess flips the PersistentAccessRecord for account on
// the protected value. Admin only. Turning it off is a soft revocation:
// it blocks the gated read path but does not retract grants already
// issued.
func (g *AccessGate) SetPersistentAccess(st *RegistryState, caller, valueID, account string, allowed bool) error {
	if err := st.RequireAdmin(caller); err != nil {
		return fmt.Errorf("set persistent access: %w", err)
	}
	if _, ok := st.handles[valueID]; !ok {
		return fmt.Errorf("set persistent access on %s: %w", valueID, models.ErrUnknownHandle)
	}
	if st.persistent[valueID] == nil {
		st.persistent[valueID] = make(map[string]bool)
	}
	st.persistent[valueID][account] = allowed
	st.audit("persistent_access", valueID, account)
	return nil
}

// neutralHandle imports an encryption of zero with the given tag and
// self-grants it so it can serve as the false branch of a select.
func (g *AccessGate) neutralHandle(st *RegistryState, tag models.TypeTag) (models.Handle, error) {
	ciphertext, proof, err := g.engine.Encrypt(engine.EncodeUint64(0), st.Context, st.Context)
	if err != nil {
		return models.Handle{}, fmt.Errorf("neutral value: %w", err)
	}
	handle, err := g.store.ImportExternal(st, ciphertext, tag, proof, st.Context)
	if err != nil {
		return models.Handle{}, fmt.Errorf("neutral value: %w", err)
	}
	if err := g.registry.SelfGrant(st, handle.ID); err != nil {
		return models.Handle{}, fmt.Errorf("neutral value: %w", err)
	}
	return handle, nil
}
