package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/covaultio/covault/internal/engine"
	"github.com/covaultio/covault/internal/models"
)

// CommitmentStore persists reveal commitments so settlements survive a
// restart. The protocol core never reads it back during an operation.
type CommitmentStore interface {
	Save(ctx context.Context, c models.RevealCommitment) error
	LoadAll(ctx context.Context) ([]models.RevealCommitment, error)
}

// Vault is the operation surface over one owning context. Every exported
// method is one top-level operation: it runs serialized against the
// context's RegistryState, commits atomically or not at all, and any
// transient grant it issues is gone when it returns.
type Vault struct {
	st          *RegistryState
	store       *HandleStore
	registry    *PermissionRegistry
	roles       *RoleManager
	gate        *AccessGate
	coordinator *DecryptionCoordinator
	commitments CommitmentStore
	log         *zap.Logger
}

// NewVault wires the protocol components over a fresh RegistryState for
// the given owning context. commitments may be nil for purely in-memory
// use; previously persisted commitments are loaded for inspection.
func NewVault(ctx context.Context, owningContext, admin string, eng engine.Engine, sink AuditSink, commitments CommitmentStore, log *zap.Logger) (*Vault, error) {
	st := NewRegistryState(owningContext, admin, sink)
	store := NewHandleStore(eng)
	registry := NewPermissionRegistry()

	v := &Vault{
		st:          st,
		store:       store,
		registry:    registry,
		roles:       NewRoleManager(store, registry),
		gate:        NewAccessGate(store, registry, eng),
		coordinator: NewDecryptionCoordinator(store, registry, eng),
		commitments: commitments,
		log:         log,
	}
	if commitments != nil {
		loaded, err := commitments.LoadAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("load commitments: %w", err)
		}
		for _, c := range loaded {
			st.commitments[c.ID] = c
		}
	}
	return v, nil
}

// Admin returns the current admin identity of the owning context.
func (v *Vault) Admin() string {
	return v.st.Admin()
}

// ImportValue registers an externally encrypted input as a handle. No
// grant is attached: the caller decides explicitly who may use it.
func (v *Vault) ImportValue(ctx context.Context, subject string, ciphertext []byte, tag models.TypeTag, proof []byte) (models.Handle, error) {
	var h models.Handle
	err := v.st.Run(ctx, func() (err error) {
		h, err = v.store.ImportExternal(v.st, ciphertext, tag, proof, subject)
		return err
	})
	return h, err
}

// ProvisionSecret is the admin path for long-lived values: it imports
// the ciphertext and immediately self-grants the handle, so the context
// can gate and re-expose it later. Forgetting that self-grant is the
// classic way to end up with a value nobody can ever decrypt; this
// operation makes it impossible.
func (v *Vault) ProvisionSecret(ctx context.Context, caller string, ciphertext []byte, tag models.TypeTag, proof []byte) (models.Handle, error) {
	var h models.Handle
	err := v.st.Run(ctx, func() (err error) {
		if err := v.st.RequireAdmin(caller); err != nil {
			return fmt.Errorf("provision secret: %w", err)
		}
		h, err = v.store.ImportExternal(v.st, ciphertext, tag, proof, caller)
		if err != nil {
			return err
		}
		return v.registry.SelfGrant(v.st, h.ID)
	})
	return h, err
}

// Grant issues a grant of the given kind to subject. The caller must be
// the admin or itself hold access to the handle.
func (v *Vault) Grant(ctx context.Context, caller, handleID, subject string, kind models.GrantKind) error {
	return v.st.Run(ctx, func() error {
		if v.st.RequireAdmin(caller) != nil && !v.registry.CanAccess(v.st, handleID, caller) {
			return fmt.Errorf("grant by %s: %w", caller, models.ErrAuthorization)
		}
		return v.registry.Grant(v.st, handleID, subject, kind)
	})
}

// SelfGrant issues the owning context's own grant on a handle. Admin
// only: this is what makes a value usable at all.
func (v *Vault) SelfGrant(ctx context.Context, caller, handleID string) error {
	return v.st.Run(ctx, func() error {
		if err := v.st.RequireAdmin(caller); err != nil {
			return fmt.Errorf("self-grant: %w", err)
		}
		return v.registry.SelfGrant(v.st, handleID)
	})
}

// Revoke clears a persistent grant for subject. Subjects may revoke
// their own grants; the admin may revoke anyone's. Revocation is an
// application-level gate only; see PermissionRegistry.
func (v *Vault) Revoke(ctx context.Context, caller, handleID, subject string) error {
	return v.st.Run(ctx, func() error {
		if caller != subject && v.st.RequireAdmin(caller) != nil {
			return fmt.Errorf("revoke by %s: %w", caller, models.ErrAuthorization)
		}
		return v.registry.Revoke(v.st, handleID, subject)
	})
}

// Access reports whether subject currently holds access to the handle.
// Transient grants from earlier operations are never visible here.
func (v *Vault) Access(ctx context.Context, handleID, subject string) (bool, error) {
	var ok bool
	err := v.st.Run(ctx, func() error {
		ok = v.registry.CanAccess(v.st, handleID, subject)
		return nil
	})
	return ok, err
}

// TypeTagOf returns the type tag of a handle.
func (v *Vault) TypeTagOf(ctx context.Context, handleID string) (models.TypeTag, error) {
	var tag models.TypeTag
	err := v.st.Run(ctx, func() (err error) {
		tag, err = v.store.TypeTagOf(v.st, handleID)
		return err
	})
	return tag, err
}

// SetRole imports the encrypted role flag for account. Admin only.
func (v *Vault) SetRole(ctx context.Context, caller, account string, ciphertext, proof []byte) (models.Handle, error) {
	var h models.Handle
	err := v.st.Run(ctx, func() (err error) {
		h, err = v.roles.SetRole(v.st, caller, account, ciphertext, proof)
		return err
	})
	return h, err
}

// AdminTransfer hands adminship to newAdmin. Admin only.
func (v *Vault) AdminTransfer(ctx context.Context, caller, newAdmin string) error {
	return v.st.Run(ctx, func() error {
		return v.roles.AdminTransfer(v.st, caller, newAdmin)
	})
}

// ProvisionRead seeds subject's long-lived access to a value: it
// performs a persistent guarded read on subject's behalf, which both
// hands subject a decryptable handle and records the
// PersistentAccessRecord that ReadPersistent consults on subsequent
// reads. Admin only; a subject must not be able to re-seed its own
// record after a soft revocation. If condID is empty the subject's role
// flag is the condition.
func (v *Vault) ProvisionRead(ctx context.Context, caller, subject, valueID, condID string) (models.Handle, error) {
	var h models.Handle
	err := v.st.Run(ctx, func() (err error) {
		if err := v.st.RequireAdmin(caller); err != nil {
			return fmt.Errorf("provision read: %w", err)
		}
		cond := condID
		if cond == "" {
			cond, err = v.roles.RoleOf(v.st, subject)
			if err != nil {
				return fmt.Errorf("provision read: no role flag for %s: %w", subject, models.ErrAuthorization)
			}
		}
		h, err = v.gate.GuardedRead(v.st, valueID, cond, subject, models.Persistent)
		return err
	})
	return h, err
}

// GuardedReadAndDecrypt performs a transient guarded read and fulfills
// the decryption inside the same top-level operation, returning the
// cleartext. This is the ad hoc read path: nothing persistent is left
// behind.
func (v *Vault) GuardedReadAndDecrypt(ctx context.Context, subject, valueID, condID string) ([]byte, error) {
	var req models.DecryptionRequest
	err := v.st.Run(ctx, func() error {
		cond := condID
		if cond == "" {
			c, err := v.roles.RoleOf(v.st, subject)
			if err != nil {
				return fmt.Errorf("guarded read: no role flag for %s: %w", subject, models.ErrAuthorization)
			}
			cond = c
		}
		h, err := v.gate.GuardedRead(v.st, valueID, cond, subject, models.Transient)
		if err != nil {
			return err
		}
		req, err = v.coordinator.RequestUserDecryption(v.st, subject, []string{h.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	cleartexts, err := v.coordinator.FulfillUserDecryption(ctx, v.st, req.ID)
	if err != nil {
		return nil, err
	}
	return cleartexts[0], nil
}

// ReadPersistent is the provisioned long-lived read path, gated by the
// subject's PersistentAccessRecord on the value.
func (v *Vault) ReadPersistent(ctx context.Context, subject, valueID, condID string) (models.Handle, error) {
	var h models.Handle
	err := v.st.Run(ctx, func() (err error) {
		cond := condID
		if cond == "" {
			cond, err = v.roles.RoleOf(v.st, subject)
			if err != nil {
				return fmt.Errorf("persistent read: no role flag for %s: %w", subject, models.ErrAuthorization)
			}
		}
		h, err = v.gate.ReadPersistent(v.st, valueID, cond, subject)
		return err
	})
	return h, err
}

// SetPersistentAccess flips an account's PersistentAccessRecord on a
// value. Admin only.
func (v *Vault) SetPersistentAccess(ctx context.Context, caller, valueID, account string, allowed bool) error {
	return v.st.Run(ctx, func() error {
		return v.gate.SetPersistentAccess(v.st, caller, valueID, account, allowed)
	})
}

// UserDecrypt performs selective decryption of the given handles for
// subject: authorization happens atomically, then the engine produces
// the cleartexts outside the operation.
func (v *Vault) UserDecrypt(ctx context.Context, subject string, handleIDs []string) ([][]byte, error) {
	var req models.DecryptionRequest
	err := v.st.Run(ctx, func() (err error) {
		req, err = v.coordinator.RequestUserDecryption(v.st, subject, handleIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v.coordinator.FulfillUserDecryption(ctx, v.st, req.ID)
}

// MakePublic marks a handle publicly decryptable. Open to any subject;
// the transition is irreversible.
func (v *Vault) MakePublic(ctx context.Context, handleID string) error {
	return v.st.Run(ctx, func() error {
		return v.coordinator.MakePubliclyDecryptable(v.st, handleID)
	})
}

// VerifyPublicResult checks a claimed public decryption against a
// publicly decryptable handle.
func (v *Vault) VerifyPublicResult(ctx context.Context, handleID string, clearValue, proof []byte) error {
	return v.st.Run(ctx, func() error {
		return v.coordinator.VerifyPublic(v.st, handleID, clearValue, proof)
	})
}

// CreateCommitment opens a reveal commitment between two parties over a
// result handle.
func (v *Vault) CreateCommitment(ctx context.Context, partyA, partyB, resultHandleID string) (models.RevealCommitment, error) {
	var c models.RevealCommitment
	err := v.st.Run(ctx, func() (err error) {
		c, err = v.coordinator.CreateCommitment(v.st, partyA, partyB, resultHandleID)
		return err
	})
	if err != nil {
		return models.RevealCommitment{}, err
	}
	v.persistCommitment(ctx, c)
	return c, nil
}

// MarkRevealable moves a commitment to Revealable and makes its result
// handle publicly decryptable.
func (v *Vault) MarkRevealable(ctx context.Context, commitmentID string) (models.RevealCommitment, error) {
	var c models.RevealCommitment
	err := v.st.Run(ctx, func() (err error) {
		c, err = v.coordinator.MarkRevealable(v.st, commitmentID)
		return err
	})
	if err != nil {
		return models.RevealCommitment{}, err
	}
	v.persistCommitment(ctx, c)
	return c, nil
}

// Settle records a verified revealed value on a Revealable commitment.
// A bad proof leaves the commitment Revealable and is safe to retry.
func (v *Vault) Settle(ctx context.Context, commitmentID string, clearValue, proof []byte) (models.RevealCommitment, error) {
	var c models.RevealCommitment
	err := v.st.Run(ctx, func() (err error) {
		c, err = v.coordinator.Settle(v.st, commitmentID, clearValue, proof)
		return err
	})
	if err != nil {
		return models.RevealCommitment{}, err
	}
	v.persistCommitment(ctx, c)
	return c, nil
}

// Commitment returns a commitment by id.
func (v *Vault) Commitment(ctx context.Context, commitmentID string) (models.RevealCommitment, error) {
	var c models.RevealCommitment
	err := v.st.Run(ctx, func() (err error) {
		c, err = v.coordinator.Commitment(v.st, commitmentID)
		return err
	})
	return c, err
}

func (v *Vault) persistCommitment(ctx context.Context, c models.RevealCommitment) {
	if v.commitments == nil {
		return
	}
	if err := v.commitments.Save(ctx, c); err != nil && v.log != nil {
		v.log.Error("failed to persist commitment",
			zap.String("commitment", c.ID), zap.Error(err))
	}
}
