// Package http provides the HTTP surface of the protocol: subject
// registration, handle and grant management, guarded reads, and the two
// decryption flows.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/covaultio/covault/internal/certgen"
)

// RegistrarService defines the registration operations required by the
// HTTP handlers.
type RegistrarService interface {
	// SubjectExists checks whether a subject with the given identity is
	// registered.
	SubjectExists(context.Context, string) (bool, error)
	// RegisterSubject registers a new subject identity.
	RegisterSubject(context.Context, string) error
}

// AuthHandler handles subject registration and certificate-based login.
type AuthHandler struct {
	// Registrar performs the underlying registration operations.
	Registrar RegistrarService
	// CACertPath and CAKeyPath locate the CA credentials used to sign
	// subject certificates.
	CACertPath string
	CAKeyPath  string
}

// RegisterRequest represents the JSON payload for subject registration.
type RegisterRequest struct {
	// Subject is the identity to register.
	Subject string `json:"subject"`
}

// Register handles subject registration requests. It expects a JSON
// body with a non-empty "subject" field. If the identity is new, it is
// recorded and a CA-signed client certificate is returned; the
// certificate's Common Name is the subject every later operation is
// attributed to.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Subject == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	exists, err := h.Registrar.SubjectExists(r.Context(), req.Subject)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if exists {
		http.Error(w, "subject already registered", http.StatusConflict)
		return
	}

	caCert, caKey, err := certgen.LoadCACredentials(h.CACertPath, h.CAKeyPath)
	if err != nil {
		http.Error(w, "failed to load CA", http.StatusInternalServerError)
		return
	}

	certPEM, keyPEM, err := certgen.GenerateSubjectCertificate(req.Subject, caCert, caKey)
	if err != nil {
		http.Error(w, "failed to generate certificate", http.StatusInternalServerError)
		return
	}

	if err := h.Registrar.RegisterSubject(r.Context(), req.Subject); err != nil {
		http.Error(w, "failed to save subject", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"cert": string(certPEM),
		"key":  string(keyPEM),
	})
}

// Login handles certificate-based login. The Common Name from the
// presented client certificate is the subject; if it is registered the
// call returns ok.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		http.Error(w, "client certificate required", http.StatusUnauthorized)
		return
	}

	subject := r.TLS.PeerCertificates[0].Subject.CommonName

	exists, err := h.Registrar.SubjectExists(r.Context(), subject)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !exists {
		http.Error(w, "subject not found", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"subject": subject,
	})
}
