// Package middleware provides HTTP middlewares for subject
// authentication and request logging.
package middleware

import (
	"context"
	"net/http"
)

type ctxKey string

const subjectKey ctxKey = "subject"

// CertAuth is a middleware that enforces mutual TLS authentication.
//
// Every protocol operation is performed on behalf of a subject, and the
// subject identity is the Common Name (CN) of the client certificate.
// The /api/register endpoint is excluded so new subjects can obtain a
// certificate in the first place.
//
// On successful validation the CN is stored in the request context and
// used downstream as the authenticated subject.
func CertAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/register" {
			// Allow registration without certificate
			next.ServeHTTP(w, r)
			return
		}
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			http.Error(w, "no client certificate provided", http.StatusUnauthorized)
			return
		}
		cert := r.TLS.PeerCertificates[0]
		ctx := context.WithValue(r.Context(), subjectKey, cert.Subject.CommonName)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSubjectFromContext extracts the authenticated subject identity
// (Common Name from the client certificate) from the request context.
// Returns an empty string if not found.
func GetSubjectFromContext(ctx context.Context) string {
	val := ctx.Value(subjectKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

// WithSubject returns a copy of ctx carrying the given subject identity.
// Used by tests and the client to inject an identity without TLS.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}
