package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/covaultio/covault/internal/middleware"
	"github.com/covaultio/covault/internal/models"
)

// DecryptionService defines the finalization operations required by the
// decryption handlers.
type DecryptionService interface {
	UserDecrypt(ctx context.Context, subject string, handleIDs []string) ([][]byte, error)
	MakePublic(ctx context.Context, handleID string) error
	VerifyPublicResult(ctx context.Context, handleID string, clearValue, proof []byte) error
	CreateCommitment(ctx context.Context, partyA, partyB, resultHandleID string) (models.RevealCommitment, error)
	MarkRevealable(ctx context.Context, commitmentID string) (models.RevealCommitment, error)
	Settle(ctx context.Context, commitmentID string, clearValue, proof []byte) (models.RevealCommitment, error)
	Commitment(ctx context.Context, commitmentID string) (models.RevealCommitment, error)
}

// AuditService lists the committed audit stream for monitoring.
type AuditService interface {
	List(ctx context.Context, owningContext string, limit int) ([]models.AuditEvent, error)
}

// DecryptHandler serves the selective and public decryption flows.
type DecryptHandler struct {
	Decryption DecryptionService
}

// UserDecrypt handles POST /api/decrypt: selective decryption of one or
// more handles bound to the calling subject. All-or-nothing: if any
// handle is not accessible no cleartext is returned at all.
func (h *DecryptHandler) UserDecrypt(w http.ResponseWriter, r *http.Request) {
	subject := middleware.GetSubjectFromContext(r.Context())

	var req struct {
		Handles []string `json:"handles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Handles) == 0 {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	cleartexts, err := h.Decryption.UserDecrypt(r.Context(), subject, req.Handles)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string][][]byte{"cleartexts": cleartexts})
}

// MakePublic handles POST /api/handles/{id}/make-public: the one-way
// transition to universal decryptability.
func (h *DecryptHandler) MakePublic(w http.ResponseWriter, r *http.Request) {
	if err := h.Decryption.MakePublic(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// VerifyPublic handles POST /api/handles/{id}/verify-public: checks a
// claimed public decryption result against the handle.
func (h *DecryptHandler) VerifyPublic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value []byte `json:"value"`
		Proof []byte `json:"proof"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.Decryption.VerifyPublicResult(r.Context(), chi.URLParam(r, "id"), req.Value, req.Proof); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// CreateCommitment handles POST /api/commitments. The caller is party A.
func (h *DecryptHandler) CreateCommitment(w http.ResponseWriter, r *http.Request) {
	partyA := middleware.GetSubjectFromContext(r.Context())

	var req struct {
		PartyB       string `json:"party_b"`
		ResultHandle string `json:"result_handle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ResultHandle == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	c, err := h.Decryption.CreateCommitment(r.Context(), partyA, req.PartyB, req.ResultHandle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c)
}

// Reveal handles POST /api/commitments/{id}/reveal: moves the
// commitment to Revealable, making its result handle publicly
// decryptable.
func (h *DecryptHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	c, err := h.Decryption.MarkRevealable(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c)
}

// Settle handles POST /api/commitments/{id}/settle: records a verified
// revealed value. Retryable on proof failure, refused once settled.
func (h *DecryptHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value []byte `json:"value"`
		Proof []byte `json:"proof"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	c, err := h.Decryption.Settle(r.Context(), chi.URLParam(r, "id"), req.Value, req.Proof)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c)
}

// GetCommitment handles GET /api/commitments/{id}.
func (h *DecryptHandler) GetCommitment(w http.ResponseWriter, r *http.Request) {
	c, err := h.Decryption.Commitment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c)
}

// AuditHandler serves the committed audit stream.
type AuditHandler struct {
	Audit AuditService
	// Context is the owning context whose stream is served.
	Context string
}

// List handles GET /api/audit?limit=N, newest events first.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.Audit.List(r.Context(), h.Context, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, events)
}
