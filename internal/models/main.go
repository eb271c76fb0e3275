// Package models defines the core data structures of the capability
// protocol: handles over encrypted values, access grants, role flags,
// and reveal commitments.
package models

import (
	"math"
	"time"
)

// TypeTag identifies the semantic plaintext type behind a handle.
// It is fixed when the handle is created and never changes.
type TypeTag string

const (
	// TypeBool represents an encrypted boolean.
	TypeBool TypeTag = "bool"
	// TypeUint8 represents an encrypted 8-bit unsigned integer.
	TypeUint8 TypeTag = "uint8"
	// TypeUint16 represents an encrypted 16-bit unsigned integer.
	TypeUint16 TypeTag = "uint16"
	// TypeUint32 represents an encrypted 32-bit unsigned integer.
	TypeUint32 TypeTag = "uint32"
	// TypeUint64 represents an encrypted 64-bit unsigned integer.
	TypeUint64 TypeTag = "uint64"
)

// Valid reports whether t is one of the declared type tags.
func (t TypeTag) Valid() bool {
	switch t {
	case TypeBool, TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		return true
	}
	return false
}

// MaxValue returns the largest cleartext value representable under t.
// Values travel as uint64 on the wire; the tag bounds what a handle may
// actually hold.
func (t TypeTag) MaxValue() uint64 {
	switch t {
	case TypeBool:
		return 1
	case TypeUint8:
		return math.MaxUint8
	case TypeUint16:
		return math.MaxUint16
	case TypeUint32:
		return math.MaxUint32
	}
	return math.MaxUint64
}

// Handle identifies one opaque encrypted value. The ciphertext itself is
// held by the cryptographic engine; the handle only carries the reference.
type Handle struct {
	// ID is the unique identifier of the handle, assigned at creation
	// and never reused.
	ID string `json:"id"`
	// Type is the semantic type of the plaintext behind the handle.
	Type TypeTag `json:"type"`
	// Ciphertext is the opaque ciphertext reference understood by the engine.
	Ciphertext []byte `json:"ciphertext"`
	// Context is the owning context that created the handle.
	Context string `json:"context"`
	// PubliclyDecryptable marks a handle that has gone through the
	// one-way public-decryption transition. Once true, anyone may
	// decrypt it; the flag never resets.
	PubliclyDecryptable bool `json:"publicly_decryptable"`
}

// GrantKind distinguishes long-lived grants from operation-scoped ones.
type GrantKind string

const (
	// Persistent grants stay valid until explicitly revoked.
	Persistent GrantKind = "persistent"
	// Transient grants are valid only within the operation that issued
	// them and are erased at the operation boundary.
	Transient GrantKind = "transient"
)

// Grant is a capability record: subject may use handle, with the
// lifetime implied by Kind. Subject is either an external account or the
// owning context itself (a self-grant).
type Grant struct {
	HandleID string    `json:"handle_id"`
	Subject  string    `json:"subject"`
	Kind     GrantKind `json:"kind"`
	// Op is the sequence number of the operation that issued a
	// transient grant; zero for persistent grants.
	Op uint64 `json:"-"`
}

// CommitmentState is the lifecycle state of a RevealCommitment.
type CommitmentState string

const (
	// Created means the commitment exists but its result handle has not
	// been marked publicly decryptable yet.
	Created CommitmentState = "created"
	// Revealable means the result handle is publicly decryptable and
	// the commitment awaits a verified cleartext.
	Revealable CommitmentState = "revealable"
	// Settled is terminal: the revealed value is recorded and can never
	// be overwritten.
	Settled CommitmentState = "settled"
)

// RevealCommitment binds two parties to the eventual public reveal of an
// encrypted result. It transitions Created -> Revealable -> Settled and
// never back.
type RevealCommitment struct {
	ID            string          `json:"id"`
	PartyA        string          `json:"party_a"`
	PartyB        string          `json:"party_b"`
	ResultHandle  string          `json:"result_handle"`
	State         CommitmentState `json:"state"`
	RevealedValue []byte          `json:"revealed_value,omitempty"`
}

// DecryptionRequest records one authorized selective-decryption request.
// The permission checks happen when the request is created; the engine
// call that produces cleartext happens afterwards, outside the atomic
// state-mutation core.
type DecryptionRequest struct {
	ID        string   `json:"id"`
	Subject   string   `json:"subject"`
	HandleIDs []string `json:"handle_ids"`
}

// AuditEvent is one append-only entry of the audit stream. Events are
// consumed by external monitoring, never by the protocol core.
type AuditEvent struct {
	// Seq is assigned by the audit sink and orders the stream.
	Seq int64 `json:"seq"`
	// Action names what happened ("grant", "revoke", "role_set",
	// "admin_transfer", "settle", ...).
	Action string `json:"action"`
	// HandleID is the affected handle, if any.
	HandleID string `json:"handle_id,omitempty"`
	// Subject is the account the action concerns.
	Subject string `json:"subject,omitempty"`
	// Context is the owning context the action happened in.
	Context string `json:"context"`
	// At is the time the event was recorded.
	At time.Time `json:"at"`
}
