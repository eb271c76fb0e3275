// Package engine defines the cryptographic engine boundary of the
// protocol. The engine is an external collaborator: it owns key material,
// performs encryption, evaluation, and threshold decryption, and produces
// the proofs the protocol core verifies. The core never sees plaintext.
package engine

import (
	"context"
	"encoding/binary"
)

// Operation names an opaque evaluation over ciphertexts. The protocol
// core treats the result as just another ciphertext.
type Operation string

const (
	// OpSelect evaluates select(cond, a, b): the encryption of a if the
	// encrypted condition is true, of b otherwise. No information about
	// the condition leaks from the evaluation itself.
	OpSelect Operation = "select"
	// OpAdd evaluates the sum of two encrypted unsigned integers.
	OpAdd Operation = "add"
)

// Engine is the interface to the cryptographic engine.
//
// ThresholdDecrypt is the one potentially long-latency call: it may run
// out-of-process and must not be invoked inside an atomic state
// mutation.
type Engine interface {
	// Encrypt encrypts cleartext for the given owning context and
	// submitting subject, returning the ciphertext reference and an
	// import proof binding the ciphertext to that (context, subject)
	// pair.
	Encrypt(cleartext []byte, owningContext, subject string) (ciphertext, proof []byte, err error)

	// VerifyImport reports whether proof binds ciphertext to the given
	// owning context and subject.
	VerifyImport(ciphertext, proof []byte, owningContext, subject string) bool

	// Evaluate applies op to the operand ciphertexts and returns the
	// resulting ciphertext.
	Evaluate(op Operation, operands ...[]byte) ([]byte, error)

	// InRange reports whether the cleartext behind ciphertext is at most
	// max, without revealing it. Used to enforce a handle's declared type
	// width at import.
	InRange(ciphertext []byte, max uint64) (bool, error)

	// ThresholdDecrypt produces the cleartext of ciphertext bound to the
	// given authorized subject.
	ThresholdDecrypt(ctx context.Context, ciphertext []byte, subject string) ([]byte, error)

	// PublicDecrypt produces the cleartext of ciphertext together with a
	// proof that anyone can verify with VerifyDecryption.
	PublicDecrypt(ciphertext []byte) (cleartext, proof []byte, err error)

	// VerifyDecryption reports whether proof shows that cleartext is the
	// decryption of ciphertext.
	VerifyDecryption(ciphertext, cleartext, proof []byte) bool
}

// valueSize is the fixed cleartext width. All plaintext values travel as
// big-endian uint64; booleans are 0 or 1.
const valueSize = 8

// EncodeUint64 returns the fixed-width cleartext encoding of v.
func EncodeUint64(v uint64) []byte {
	buf := make([]byte, valueSize)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// DecodeUint64 reads a fixed-width cleartext back into a uint64.
// Short inputs decode as zero.
func DecodeUint64(b []byte) uint64 {
	if len(b) < valueSize {
		return 0
	}
	return binary.BigEndian.Uint64(b[:valueSize])
}

// EncodeBool returns the cleartext encoding of a boolean.
func EncodeBool(v bool) []byte {
	if v {
		return EncodeUint64(1)
	}
	return EncodeUint64(0)
}

// DecodeBool reads a cleartext back into a boolean; any nonzero value is
// true.
func DecodeBool(b []byte) bool {
	return DecodeUint64(b) != 0
}
