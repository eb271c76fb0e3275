// Package service implements the capability protocol core: the handle
// store, the permission registry, the role manager, the access gate, and
// the decryption coordinator, all operating on an explicit RegistryState.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/covaultio/covault/internal/models"
)

// AuditSink receives the append-only audit events of committed
// operations. It is consumed by external monitoring, never read back by
// the protocol core.
type AuditSink interface {
	Append(ctx context.Context, events []models.AuditEvent) error
}

type grantKey struct {
	handleID string
	subject  string
	kind     models.GrantKind
}

// RegistryState holds all mutable protocol state of one owning context.
// It is passed explicitly to every operation; there is no ambient global
// state. Mutations happen only inside Run, which serializes operations
// and guarantees each one commits atomically or not at all.
type RegistryState struct {
	mu sync.Mutex

	// Context is the owning-context identifier. Grants whose subject
	// equals Context are self-grants.
	Context string

	admin       string
	handles     map[string]models.Handle
	grants      map[grantKey]models.Grant
	roles       map[string]string
	persistent  map[string]map[string]bool
	commitments map[string]models.RevealCommitment
	requests    map[string]models.DecryptionRequest

	// opSeq numbers top-level operations. Transient grants carry the
	// sequence of the operation that issued them.
	opSeq uint64

	pending []models.AuditEvent
	sink    AuditSink
}

// NewRegistryState creates the state for one owning context with the
// given initial admin identity. Audit events of committed operations are
// handed to sink; a nil sink discards them.
func NewRegistryState(owningContext, admin string, sink AuditSink) *RegistryState {
	return &RegistryState{
		Context:     owningContext,
		admin:       admin,
		handles:     make(map[string]models.Handle),
		grants:      make(map[grantKey]models.Grant),
		roles:       make(map[string]string),
		persistent:  make(map[string]map[string]bool),
		commitments: make(map[string]models.RevealCommitment),
		requests:    make(map[string]models.DecryptionRequest),
		sink:        sink,
	}
}

type snapshot struct {
	admin       string
	handles     map[string]models.Handle
	grants      map[grantKey]models.Grant
	roles       map[string]string
	persistent  map[string]map[string]bool
	commitments map[string]models.RevealCommitment
	requests    map[string]models.DecryptionRequest
}

func (s *RegistryState) snapshot() snapshot {
	snap := snapshot{
		admin:       s.admin,
		handles:     make(map[string]models.Handle, len(s.handles)),
		grants:      make(map[grantKey]models.Grant, len(s.grants)),
		roles:       make(map[string]string, len(s.roles)),
		persistent:  make(map[string]map[string]bool, len(s.persistent)),
		commitments: make(map[string]models.RevealCommitment, len(s.commitments)),
		requests:    make(map[string]models.DecryptionRequest, len(s.requests)),
	}
	for k, v := range s.handles {
		snap.handles[k] = v
	}
	for k, v := range s.grants {
		snap.grants[k] = v
	}
	for k, v := range s.roles {
		snap.roles[k] = v
	}
	for k, v := range s.persistent {
		inner := make(map[string]bool, len(v))
		for a, b := range v {
			inner[a] = b
		}
		snap.persistent[k] = inner
	}
	for k, v := range s.commitments {
		snap.commitments[k] = v
	}
	for k, v := range s.requests {
		snap.requests[k] = v
	}
	return snap
}

func (s *RegistryState) restore(snap snapshot) {
	s.admin = snap.admin
	s.handles = snap.handles
	s.grants = snap.grants
	s.roles = snap.roles
	s.persistent = snap.persistent
	s.commitments = snap.commitments
	s.requests = snap.requests
}

// Run executes fn as one top-level operation. Operations are serialized;
// on error every state mutation fn made is rolled back and no audit
// events are emitted. A sink that rejects the events fails the operation
// the same way: the mutations are rolled back and the sink error
// returned. Transient grants issued by fn are erased when Run returns,
// success or failure, so they can never be observed from a later
// operation.
func (s *RegistryState) Run(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opSeq++
	snap := s.snapshot()
	s.pending = s.pending[:0]

	err := fn()
	if err == nil && s.sink != nil && len(s.pending) > 0 {
		events := make([]models.AuditEvent, len(s.pending))
		copy(events, s.pending)
		if aerr := s.sink.Append(ctx, events); aerr != nil {
			// An operation whose audit events cannot be recorded fails,
			// and a failed operation leaves no trace.
			err = fmt.Errorf("audit append: %w", aerr)
		}
	}
	if err != nil {
		s.restore(snap)
	}
	s.clearTransient()
	return err
}

// clearTransient drops every transient grant. Called at the operation
// boundary under the state lock.
func (s *RegistryState) clearTransient() {
	for k := range s.grants {
		if k.kind == models.Transient {
			delete(s.grants, k)
		}
	}
}

// RequireAdmin is the explicit authorization check admin operations
// compose at their top. It returns ErrAuthorization unless caller is the
// current admin.
func (s *RegistryState) RequireAdmin(caller string) error {
	if caller == "" || caller != s.admin {
		return models.ErrAuthorization
	}
	return nil
}

// Admin returns the current admin identity.
func (s *RegistryState) Admin() string {
	return s.admin
}

// audit queues an event for emission if the running operation commits.
func (s *RegistryState) audit(action, handleID, subject string) {
	s.pending = append(s.pending, models.AuditEvent{
		Action:   action,
		HandleID: handleID,
		Subject:  subject,
		Context:  s.Context,
		At:       time.Now(),
	})
}
