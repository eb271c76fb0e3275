package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/covaultio/covault/internal/engine"
	"github.com/covaultio/covault/internal/models"
)

// DecryptionCoordinator drives the two finalization flows: selective
// decryption bound to one authorized subject, and public decryption
// where a handle becomes universally revealable and results are verified
// on return.
type DecryptionCoordinator struct {
	store    *HandleStore
	registry *PermissionRegistry
	engine   engine.Engine
}

// NewDecryptionCoordinator constructs a DecryptionCoordinator.
func NewDecryptionCoordinator(store *HandleStore, registry *PermissionRegistry, eng engine.Engine) *DecryptionCoordinator {
	return &DecryptionCoordinator{store: store, registry: registry, engine: eng}
}

// RequestUserDecryption authorizes a selective decryption of the given
// handles for subject. Every handle is checked against the permission
// registry; if any check fails the whole request is refused with
// ErrAuthorization and no partial result exists. On success a pending
// request is recorded; the engine call happens in FulfillUserDecryption,
// outside the atomic operation.
func (d *DecryptionCoordinator) RequestUserDecryption(st *RegistryState, subject string, handleIDs []string) (models.DecryptionRequest, error) {
	if len(handleIDs) == 0 {
		return models.DecryptionRequest{}, fmt.Errorf("decryption request without handles")
	}
	for _, id := range handleIDs {
		if !d.registry.CanAccess(st, id, subject) {
			return models.DecryptionRequest{}, fmt.Errorf("decrypt %s for %s: %w", id, subject, models.ErrAuthorization)
		}
	}
	req := models.DecryptionRequest{
		ID:        uuid.NewString(),
		Subject:   subject,
		HandleIDs: append([]string(nil), handleIDs...),
	}
	st.requests[req.ID] = req
	st.audit("decrypt_request", "", subject)
	return req, nil
}

// FulfillUserDecryption consumes a pending request and produces the
// cleartexts, in the order the handles were requested. The pending
// request and the ciphertexts are taken out of the state in one
// operation; the threshold-decryption calls then run outside it, since
// the engine may be out-of-process and slow.
func (d *DecryptionCoordinator) FulfillUserDecryption(ctx context.Context, st *RegistryState, requestID string) ([][]byte, error) {
	var (
		subject     string
		ciphertexts [][]byte
	)
	err := st.Run(ctx, func() error {
		req, ok := st.requests[requestID]
		if !ok {
			return fmt.Errorf("decryption request %s: %w", requestID, models.ErrState)
		}
		delete(st.requests, requestID)
		subject = req.Subject
		ciphertexts = make([][]byte, len(req.HandleIDs))
		for i, id := range req.HandleIDs {
			h, err := d.store.Get(st, id)
			if err != nil {
				return err
			}
			ciphertexts[i] = h.Ciphertext
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cleartexts := make([][]byte, len(ciphertexts))
	for i, c := range ciphertexts {
		v, err := d.engine.ThresholdDecrypt(ctx, c, subject)
		if err != nil {
			return nil, fmt.Errorf("threshold decrypt: %w", err)
		}
		cleartexts[i] = v
	}
	return cleartexts, nil
}

// MakePubliclyDecryptable marks the handle as universally decryptable.
// Any subject may request this; the transition is one-way and no
// registry check applies afterwards.
func (d *DecryptionCoordinator) MakePubliclyDecryptable(st *RegistryState, handleID string) error {
	h, ok := st.handles[handleID]
	if !ok {
		return fmt.Errorf("make public %s: %w", handleID, models.ErrUnknownHandle)
	}
	h.PubliclyDecryptable = true
	st.handles[handleID] = h
	st.audit("public_decryptable", handleID, "")
	return nil
}

// VerifyPublic checks a claimed public decryption result against the
// handle's ciphertext. The handle must have gone through
// MakePubliclyDecryptable first (ErrState otherwise); a proof that does
// not verify returns ErrProofVerification and leaves all state
// unchanged, so the call is safe to retry with a corrected proof.
func (d *DecryptionCoordinator) VerifyPublic(st *RegistryState, handleID string, clearValue, proof []byte) error {
	h, ok := st.handles[handleID]
	if !ok {
		return fmt.Errorf("verify public %s: %w", handleID, models.ErrUnknownHandle)
	}
	if !h.PubliclyDecryptable {
		return fmt.Errorf("handle %s is not publicly decryptable: %w", handleID, models.ErrState)
	}
	if !d.engine.VerifyDecryption(h.Ciphertext, clearValue, proof) {
		return fmt.Errorf("public decryption of %s: %w", handleID, models.ErrProofVerification)
	}
	return nil
}

// CreateCommitment opens a reveal commitment between two parties over
// the given result handle. The commitment starts in Created with no
// revealed value.
func (d *DecryptionCoordinator) CreateCommitment(st *RegistryState, partyA, partyB, resultHandleID string) (models.RevealCommitment, error) {
	if _, ok := st.handles[resultHandleID]; !ok {
		return models.RevealCommitment{}, fmt.Errorf("commitment on %s: %w", resultHandleID, models.ErrUnknownHandle)
	}
	c := models.RevealCommitment{
		ID:           uuid.NewString(),
		PartyA:       partyA,
		PartyB:       partyB,
		ResultHandle: resultHandleID,
		State:        models.Created,
	}
	st.commitments[c.ID] = c
	st.audit("commitment_created", resultHandleID, partyA)
	return c, nil
}

// MarkRevealable transitions a commitment from Created to Revealable,
// making its result handle publicly decryptable. Calling it on a
// commitment past Created fails with ErrState.
func (d *DecryptionCoordinator) MarkRevealable(st *RegistryState, commitmentID string) (models.RevealCommitment, error) {
	c, ok := st.commitments[commitmentID]
	if !ok {
		return models.RevealCommitment{}, fmt.Errorf("commitment %s: %w", commitmentID, models.ErrUnknownHandle)
	}
	if c.State != models.Created {
		return models.RevealCommitment{}, fmt.Errorf("commitment %s is %s: %w", commitmentID, c.State, models.ErrState)
	}
	if err := d.MakePubliclyDecryptable(st, c.ResultHandle); err != nil {
		return models.RevealCommitment{}, err
	}
	c.State = models.Revealable
	st.commitments[commitmentID] = c
	return c, nil
}

// Settle verifies the presented (clearValue, proof) pair against the
// commitment's result handle and, only on success, records the revealed
// value and moves the commitment to its terminal Settled state. A failed
// proof leaves the commitment Revealable and is safe to retry; settling
// an already Settled commitment fails with ErrState and never overwrites
// the recorded value.
func (d *DecryptionCoordinator) Settle(st *RegistryState, commitmentID string, clearValue, proof []byte) (models.RevealCommitment, error) {
	c, ok := st.commitments[commitmentID]
	if !ok {
		return models.RevealCommitment{}, fmt.Errorf("commitment %s: %w", commitmentID, models.ErrUnknownHandle)
	}
	switch c.State {
	case models.Revealable:
	case models.Settled:
		return models.RevealCommitment{}, fmt.Errorf("commitment %s already settled: %w", commitmentID, models.ErrState)
	default:
		return models.RevealCommitment{}, fmt.Errorf("commitment %s is %s: %w", commitmentID, c.State, models.ErrState)
	}
	if err := d.VerifyPublic(st, c.ResultHandle, clearValue, proof); err != nil {
		return models.RevealCommitment{}, err
	}
	c.State = models.Settled
	c.RevealedValue = append([]byte(nil), clearValue...)
	st.commitments[commitmentID] = c
	st.audit("settle", c.ResultHandle, c.PartyA)
	return c, nil
}

// Commitment returns the commitment with the given id.
func (d *DecryptionCoordinator) Commitment(st *RegistryState, commitmentID string) (models.RevealCommitment, error) {
	c, ok := st.commitments[commitmentID]
	if !ok {
		return models.RevealCommitment{}, fmt.Errorf("commitment %s: %w", commitmentID, models.ErrUnknownHandle)
	}
	return c, nil
}
