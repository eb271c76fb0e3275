package service

import (
	"fmt"

	"github.com/covaultio/covault/internal/models"
)

// RoleManager owns the plaintext admin identity and the per-account
// encrypted role flags used as conditions by the access gate.
type RoleManager struct {
	store    *HandleStore
	registry *PermissionRegistry
}

// NewRoleManager constructs a RoleManager over the handle store and
// permission registry.
func NewRoleManager(store *HandleStore, registry *PermissionRegistry) *RoleManager {
	return &RoleManager{store: store, registry: registry}
}

// SetRole imports the encrypted role flag for account and self-grants
// the resulting handle. The self-grant is part of this contract, not an
// optional follow-up: a role flag without it could never gate anything
// again. Admin only.
func (r *RoleManager) SetRole(st *RegistryState, caller, account string, ciphertext, proof []byte) (models.Handle, error) {
	if err := st.RequireAdmin(caller); err != nil {
		return models.Handle{}, fmt.Errorf("set role: %w", err)
	}
	handle, err := r.store.ImportExternal(st, ciphertext, models.TypeBool, proof, caller)
	if err != nil {
		return models.Handle{}, fmt.Errorf("set role: %w", err)
	}
	if err := r.registry.SelfGrant(st, handle.ID); err != nil {
		return models.Handle{}, fmt.Errorf("set role: %w", err)
	}
	st.roles[account] = handle.ID
	st.audit("role_set", handle.ID, account)
	return handle, nil
}

// RoleOf returns the role-flag handle id for account, or
// ErrUnknownHandle if no role was ever set for it.
func (r *RoleManager) RoleOf(st *RegistryState, account string) (string, error) {
	id, ok := st.roles[account]
	if !ok {
		return "", fmt.Errorf("role of %s: %w", account, models.ErrUnknownHandle)
	}
	return id, nil
}

// AdminTransfer hands adminship of the owning context to newAdmin.
// Fails with ErrAuthorization if the caller is not the current admin or
// newAdmin is the null identity.
func (r *RoleManager) AdminTransfer(st *RegistryState, caller, newAdmin string) error {
	if err := st.RequireAdmin(caller); err != nil {
		return fmt.Errorf("admin transfer: %w", err)
	}
	if newAdmin == "" {
		return fmt.Errorf("admin transfer to null identity: %w", models.ErrAuthorization)
	}
	st.admin = newAdmin
	st.audit("admin_transfer", "", newAdmin)
	return nil
}
