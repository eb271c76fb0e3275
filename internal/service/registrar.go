package service

import (
	"context"
)

// SubjectRepository defines the persistence operations required by the
// registrar.
type SubjectRepository interface {
	// SubjectExists returns true if a subject with the given identity is
	// registered.
	SubjectExists(ctx context.Context, subject string) (bool, error)
	// RegisterSubject creates a new subject record with the given identity.
	RegisterSubject(ctx context.Context, subject string) error
}

// Registrar implements subject registration by delegating to a
// SubjectRepository. Registration is what makes an identity eligible for
// a client certificate; it grants no protocol access by itself.
type Registrar struct {
	repo SubjectRepository
}

// NewRegistrar constructs a Registrar using the provided repository.
func NewRegistrar(repo SubjectRepository) *Registrar {
	return &Registrar{repo: repo}
}

// SubjectExists checks whether a subject with the given identity is
// registered.
func (s *Registrar) SubjectExists(ctx context.Context, subject string) (bool, error) {
	return s.repo.SubjectExists(ctx, subject)
}

// RegisterSubject registers a new subject identity.
func (s *Registrar) RegisterSubject(ctx context.Context, subject string) error {
	return s.repo.RegisterSubject(ctx, subject)
}
