// Package http provides HTTP routing and middleware configuration for
// the covault service.
package http

import (
	"net/http"

	"github.com/covaultio/covault/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP handler serving the covault API. It
// applies JSON content-type enforcement, request logging, and
// certificate-based subject authentication, and mounts the protocol
// endpoints under /api.
//
// Routes:
//
//	POST /api/register                       → authHandler.Register (no cert)
//	POST /api/login                          → authHandler.Login
//	POST /api/handles/import                 → handlesHandler.Import
//	POST /api/secrets                        → handlesHandler.Provision (admin)
//	POST /api/handles/{id}/grant             → handlesHandler.Grant
//	POST /api/handles/{id}/self-grant        → handlesHandler.SelfGrant (admin)
//	POST /api/handles/{id}/revoke            → handlesHandler.Revoke
//	GET  /api/handles/{id}/access            → handlesHandler.Access
//	GET  /api/handles/{id}/type              → handlesHandler.TypeTag
//	POST /api/roles                          → handlesHandler.SetRole (admin)
//	POST /api/admin/transfer                 → handlesHandler.AdminTransfer (admin)
//	POST /api/read                           → handlesHandler.Read
//	POST /api/read/provision                 → handlesHandler.ProvisionRead (admin)
//	POST /api/read/persistent                → handlesHandler.ReadPersistent
//	POST /api/access/persistent              → handlesHandler.SetPersistentAccess (admin)
//	POST /api/decrypt                        → decryptHandler.UserDecrypt
//	POST /api/handles/{id}/make-public       → decryptHandler.MakePublic
//	POST /api/handles/{id}/verify-public     → decryptHandler.VerifyPublic
//	POST /api/commitments                    → decryptHandler.CreateCommitment
//	GET  /api/commitments/{id}               → decryptHandler.GetCommitment
//	POST /api/commitments/{id}/reveal        → decryptHandler.Reveal
//	POST /api/commitments/{id}/settle        → decryptHandler.Settle
//	GET  /api/audit                          → auditHandler.List
//
// Admin endpoints are open at the routing layer; the protocol core
// performs the explicit admin check and returns 403.
func NewRouter(
	authHandler *AuthHandler,
	handlesHandler *HandlesHandler,
	decryptHandler *DecryptHandler,
	auditHandler *AuditHandler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Only allow requests with Content-Type: application/json on writes
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))
	// Enforce certificate-based authentication
	r.Use(middleware.CertAuth)

	r.Route("/api", func(r chi.Router) {
		// Public endpoint: obtaining an identity
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)

		r.Route("/handles", func(r chi.Router) {
			r.Post("/import", handlesHandler.Import)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/grant", handlesHandler.Grant)
				r.Post("/self-grant", handlesHandler.SelfGrant)
				r.Post("/revoke", handlesHandler.Revoke)
				r.Get("/access", handlesHandler.Access)
				r.Get("/type", handlesHandler.TypeTag)
				r.Post("/make-public", decryptHandler.MakePublic)
				r.Post("/verify-public", decryptHandler.VerifyPublic)
			})
		})

		r.Post("/secrets", handlesHandler.Provision)
		r.Post("/roles", handlesHandler.SetRole)
		r.Post("/admin/transfer", handlesHandler.AdminTransfer)

		r.Post("/read", handlesHandler.Read)
		r.Post("/read/provision", handlesHandler.ProvisionRead)
		r.Post("/read/persistent", handlesHandler.ReadPersistent)
		r.Post("/access/persistent", handlesHandler.SetPersistentAccess)

		r.Post("/decrypt", decryptHandler.UserDecrypt)

		r.Route("/commitments", func(r chi.Router) {
			r.Post("/", decryptHandler.CreateCommitment)
			r.Get("/{id}", decryptHandler.GetCommitment)
			r.Post("/{id}/reveal", decryptHandler.Reveal)
			r.Post("/{id}/settle", decryptHandler.Settle)
		})

		r.Get("/audit", auditHandler.List)
	})

	return r
}
