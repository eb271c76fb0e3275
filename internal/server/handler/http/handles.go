package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/covaultio/covault/internal/middleware"
	"github.com/covaultio/covault/internal/models"
)

// VaultService defines the protocol operations required by the handle,
// role, and read handlers. Implemented by service.Vault; every call is
// one top-level operation.
type VaultService interface {
	ImportValue(ctx context.Context, subject string, ciphertext []byte, tag models.TypeTag, proof []byte) (models.Handle, error)
	ProvisionSecret(ctx context.Context, caller string, ciphertext []byte, tag models.TypeTag, proof []byte) (models.Handle, error)
	Grant(ctx context.Context, caller, handleID, subject string, kind models.GrantKind) error
	SelfGrant(ctx context.Context, caller, handleID string) error
	Revoke(ctx context.Context, caller, handleID, subject string) error
	Access(ctx context.Context, handleID, subject string) (bool, error)
	TypeTagOf(ctx context.Context, handleID string) (models.TypeTag, error)
	SetRole(ctx context.Context, caller, account string, ciphertext, proof []byte) (models.Handle, error)
	AdminTransfer(ctx context.Context, caller, newAdmin string) error
	GuardedReadAndDecrypt(ctx context.Context, subject, valueID, condID string) ([]byte, error)
	ProvisionRead(ctx context.Context, caller, subject, valueID, condID string) (models.Handle, error)
	ReadPersistent(ctx context.Context, subject, valueID, condID string) (models.Handle, error)
	SetPersistentAccess(ctx context.Context, caller, valueID, account string, allowed bool) error
}

// HandlesHandler serves handle, grant, role, and guarded-read requests.
type HandlesHandler struct {
	Vault VaultService
}

// Import handles POST /api/handles/import: register an externally
// encrypted value as a new handle, with no grants attached.
func (h *HandlesHandler) Import(w http.ResponseWriter, r *http.Request) {
	subject := middleware.GetSubjectFromContext(r.Context())

	var req struct {
		Ciphertext []byte         `json:"ciphertext"`
		Type       models.TypeTag `json:"type"`
		Proof      []byte         `json:"proof"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	handle, err := h.Vault.ImportValue(r.Context(), subject, req.Ciphertext, req.Type, req.Proof)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, handle)
}

// Provision handles POST /api/secrets: the admin path that imports a
// long-lived value and self-grants it in one operation.
func (h *HandlesHandler) Provision(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetSubjectFromContext(r.Context())

	var req struct {
		Ciphertext []byte         `json:"ciphertext"`
		Type       models.TypeTag `json:"type"`
		Proof      []byte         `json:"proof"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	handle, err := h.Vault.ProvisionSecret(r.Context(), caller, req.Ciphertext, req.Type, req.Proof)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, handle)
}

// Grant handles POST /api/handles/{id}/grant.
func (h *HandlesHandler) Grant(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetSubjectFromContext(r.Context())
	handleID := chi.URLParam(r, "id")

	var req struct {
		Subject string           `json:"subject"`
		Kind    models.GrantKind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Kind != models.Persistent && req.Kind != models.Transient {
		http.Error(w, "invalid grant kind", http.StatusBadRequest)
		return
	}

	if err := h.Vault.Grant(r.Context(), caller, handleID, req.Subject, req.Kind); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// SelfGrant handles POST /api/handles/{id}/self-grant.
func (h *HandlesHandler) SelfGrant(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetSubjectFromContext(r.Context())
	handleID := chi.URLParam(r, "id")

	if err := h.Vault.SelfGrant(r.Context(), caller, handleID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// Revoke handles POST /api/handles/{id}/revoke.
func (h *HandlesHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetSubjectFromContext(r.Context())
	handleID := chi.URLParam(r, "id")

	var req struct {
		Subject string `json:"subject"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.Vault.Revoke(r.Context(), caller, handleID, req.Subject); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// Access handles GET /api/handles/{id}/access. Without an explicit
// subject query parameter it reports on the caller itself.
func (h *HandlesHandler) Access(w http.ResponseWriter, r *http.Request) {
	handleID := chi.URLParam(r, "id")
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		subject = middleware.GetSubjectFromContext(r.Context())
	}

	ok, err := h.Vault.Access(r.Context(), handleID, subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"allowed": ok})
}

// TypeTag handles GET /api/handles/{id}/type.
func (h *HandlesHandler) TypeTag(w http.ResponseWriter, r *http.Request) {
	tag, err := h.Vault.TypeTagOf(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]models.TypeTag{"type": tag})
}

// SetRole handles POST /api/roles: the admin assigns an account's
// encrypted role flag.
func (h *HandlesHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetSubjectFromContext(r.Context())

	var req struct {
		Account    string `json:"account"`
		Ciphertext []byte `json:"ciphertext"`
		Proof      []byte `json:"proof"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Account == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	handle, err := h.Vault.SetRole(r.Context(), caller, req.Account, req.Ciphertext, req.Proof)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, handle)
}

// AdminTransfer handles POST /api/admin/transfer.
func (h *HandlesHandler) AdminTransfer(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetSubjectFromContext(r.Context())

	var req struct {
		NewAdmin string `json:"new_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.Vault.AdminTransfer(r.Context(), caller, req.NewAdmin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// Read handles POST /api/read: the ad hoc guarded read. The caller gets
// the cleartext of the value if its condition holds and zero otherwise,
// via a transient grant that dies with this request.
func (h *HandlesHandler) Read(w http.ResponseWriter, r *http.Request) {
	subject := middleware.GetSubjectFromContext(r.Context())

	var req struct {
		Value     string `json:"value"`
		Condition string `json:"condition,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	cleartext, err := h.Vault.GuardedReadAndDecrypt(r.Context(), subject, req.Value, req.Condition)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string][]byte{"cleartext": cleartext})
}

// ProvisionRead handles POST /api/read/provision: the admin seeds a
// subject's persistent access to a value, handing the subject its first
// guarded-read handle and turning on the gate ReadPersistent consults.
func (h *HandlesHandler) ProvisionRead(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetSubjectFromContext(r.Context())

	var req struct {
		Subject   string `json:"subject"`
		Value     string `json:"value"`
		Condition string `json:"condition,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" || req.Value == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	handle, err := h.Vault.ProvisionRead(r.Context(), caller, req.Subject, req.Value, req.Condition)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, handle)
}

// ReadPersistent handles POST /api/read/persistent: the provisioned
// long-lived read path, gated by the caller's PersistentAccessRecord.
func (h *HandlesHandler) ReadPersistent(w http.ResponseWriter, r *http.Request) {
	subject := middleware.GetSubjectFromContext(r.Context())

	var req struct {
		Value     string `json:"value"`
		Condition string `json:"condition,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	handle, err := h.Vault.ReadPersistent(r.Context(), subject, req.Value, req.Condition)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, handle)
}

// SetPersistentAccess handles POST /api/access/persistent: the admin
// flips an account's soft gate for a provisioned value.
func (h *HandlesHandler) SetPersistentAccess(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetSubjectFromContext(r.Context())

	var req struct {
		Value   string `json:"value"`
		Account string `json:"account"`
		Allowed bool   `json:"allowed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == "" || req.Account == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.Vault.SetPersistentAccess(r.Context(), caller, req.Value, req.Account, req.Allowed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
