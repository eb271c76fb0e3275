package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/covaultio/covault/internal/engine"
	"github.com/covaultio/covault/internal/models"
)

// HandleStore owns the mapping from handle identifiers to ciphertext
// references and their type tags. Creating a handle never grants any
// permission: every new handle goes through an explicit permission
// decision by the caller.
type HandleStore struct {
	// engine verifies import proofs and evaluates derivations.
	engine engine.Engine
}

// NewHandleStore constructs a HandleStore over the given engine.
func NewHandleStore(eng engine.Engine) *HandleStore {
	return &HandleStore{engine: eng}
}

// ImportExternal registers an externally encrypted input as a new
// handle. The proof must bind the ciphertext to the owning context of st
// and the submitting subject; otherwise ErrProofVerification is
// returned and nothing is stored. The encrypted value must fit the
// declared type tag.
func (h *HandleStore) ImportExternal(st *RegistryState, ciphertext []byte, tag models.TypeTag, proof []byte, subject string) (models.Handle, error) {
	if !tag.Valid() {
		return models.Handle{}, fmt.Errorf("import: bad type tag %q", tag)
	}
	if !h.engine.VerifyImport(ciphertext, proof, st.Context, subject) {
		return models.Handle{}, fmt.Errorf("import: %w", models.ErrProofVerification)
	}
	ok, err := h.engine.InRange(ciphertext, tag.MaxValue())
	if err != nil {
		return models.Handle{}, fmt.Errorf("import: %w", err)
	}
	if !ok {
		return models.Handle{}, fmt.Errorf("import: value does not fit %s", tag)
	}
	handle := models.Handle{
		ID:         uuid.NewString(),
		Type:       tag,
		Ciphertext: ciphertext,
		Context:    st.Context,
	}
	st.handles[handle.ID] = handle
	return handle, nil
}

// Derive records a new handle whose ciphertext is the result of applying
// op to the operands' ciphertexts. The result carries the given type tag
// and the owning context of st. No permissions are granted.
func (h *HandleStore) Derive(st *RegistryState, op engine.Operation, tag models.TypeTag, operandIDs ...string) (models.Handle, error) {
	operands := make([][]byte, len(operandIDs))
	for i, id := range operandIDs {
		hd, ok := st.handles[id]
		if !ok {
			return models.Handle{}, fmt.Errorf("derive operand %s: %w", id, models.ErrUnknownHandle)
		}
		operands[i] = hd.Ciphertext
	}
	ciphertext, err := h.engine.Evaluate(op, operands...)
	if err != nil {
		return models.Handle{}, fmt.Errorf("derive %s: %w", op, err)
	}
	handle := models.Handle{
		ID:         uuid.NewString(),
		Type:       tag,
		Ciphertext: ciphertext,
		Context:    st.Context,
	}
	st.handles[handle.ID] = handle
	return handle, nil
}

// TypeTagOf returns the type tag of the given handle, or
// ErrUnknownHandle if it does not exist.
func (h *HandleStore) TypeTagOf(st *RegistryState, id string) (models.TypeTag, error) {
	hd, ok := st.handles[id]
	if !ok {
		return "", fmt.Errorf("type of %s: %w", id, models.ErrUnknownHandle)
	}
	return hd.Type, nil
}

// Get returns the handle with the given id, or ErrUnknownHandle.
func (h *HandleStore) Get(st *RegistryState, id string) (models.Handle, error) {
	hd, ok := st.handles[id]
	if !ok {
		return models.Handle{}, fmt.Errorf("handle %s: %w", id, models.ErrUnknownHandle)
	}
	return hd, nil
}
