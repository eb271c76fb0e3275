package models

import "errors"

var (
	// ErrAuthorization indicates the caller lacks the required role,
	// grant, or admin status for the operation.
	ErrAuthorization = errors.New("covault: not authorized")

	// ErrProofVerification indicates an import or decryption proof did
	// not validate against the ciphertext it claims to cover.
	ErrProofVerification = errors.New("covault: proof verification failed")

	// ErrUnknownHandle indicates a reference to a handle that does not
	// exist in the store.
	ErrUnknownHandle = errors.New("covault: unknown handle")

	// ErrState indicates an operation that is invalid for the current
	// lifecycle state, such as settling an already settled commitment.
	ErrState = errors.New("covault: invalid state for operation")
)
