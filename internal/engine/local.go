package engine

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
)

// LocalEngine is an in-process engine for development and tests. It
// stands in for the real threshold network: AES-GCM for the ciphertexts,
// HMAC-SHA256 for import and decryption proofs, all keys derived from a
// single master key. Proof verification has the same shape as the real
// engine's, so the protocol core is exercised identically.
type LocalEngine struct {
	aead     cipher.AEAD
	proofKey []byte
}

// NewLocalEngine derives the cipher and proof keys from master and
// returns a ready engine.
func NewLocalEngine(master []byte) (*LocalEngine, error) {
	cipherKey := sha256.Sum256(append([]byte("covault-cipher:"), master...))
	proofKey := sha256.Sum256(append([]byte("covault-proof:"), master...))

	block, err := aes.NewCipher(cipherKey[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return &LocalEngine{aead: aead, proofKey: proofKey[:]}, nil
}

// LoadOrCreateMasterKey reads the master key from path, generating and
// persisting a fresh 32-byte key on first use.
func LoadOrCreateMasterKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read master key: %w", err)
	}
	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("write master key: %w", err)
	}
	return key, nil
}

// Encrypt seals cleartext and returns the ciphertext together with an
// import proof bound to the owning context and submitting subject.
func (e *LocalEngine) Encrypt(cleartext []byte, owningContext, subject string) ([]byte, []byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := e.aead.Seal(nonce, nonce, cleartext, nil)
	return ciphertext, e.importProof(ciphertext, owningContext, subject), nil
}

// VerifyImport reports whether proof binds ciphertext to the owning
// context and subject it was produced for.
func (e *LocalEngine) VerifyImport(ciphertext, proof []byte, owningContext, subject string) bool {
	return hmac.Equal(proof, e.importProof(ciphertext, owningContext, subject))
}

// Evaluate applies op by opening the operands and sealing the result.
// A real engine evaluates homomorphically; the observable contract is
// the same.
func (e *LocalEngine) Evaluate(op Operation, operands ...[]byte) ([]byte, error) {
	values := make([][]byte, len(operands))
	for i, c := range operands {
		v, err := e.open(c)
		if err != nil {
			return nil, fmt.Errorf("open operand %d: %w", i, err)
		}
		values[i] = v
	}

	var result []byte
	switch op {
	case OpSelect:
		if len(values) != 3 {
			return nil, fmt.Errorf("select needs 3 operands, got %d", len(values))
		}
		// Index arithmetic instead of a branch on the condition value.
		idx := 2 - DecodeUint64(boolMask(values[0]))
		result = values[idx]
	case OpAdd:
		if len(values) != 2 {
			return nil, fmt.Errorf("add needs 2 operands, got %d", len(values))
		}
		result = EncodeUint64(DecodeUint64(values[0]) + DecodeUint64(values[1]))
	default:
		return nil, fmt.Errorf("unsupported operation %q", op)
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, result, nil), nil
}

// InRange reports whether the cleartext behind ciphertext is at most
// max. A real engine proves this over the ciphertext; the local stand-in
// opens it and compares.
func (e *LocalEngine) InRange(ciphertext []byte, max uint64) (bool, error) {
	cleartext, err := e.open(ciphertext)
	if err != nil {
		return false, err
	}
	return DecodeUint64(cleartext) <= max, nil
}

// ThresholdDecrypt opens ciphertext for the authorized subject. The
// subject binding is enforced by the caller's permission checks; the
// local stand-in has the full key and decrypts directly.
func (e *LocalEngine) ThresholdDecrypt(ctx context.Context, ciphertext []byte, subject string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.open(ciphertext)
}

// PublicDecrypt opens ciphertext and returns the cleartext with a
// decryption proof.
func (e *LocalEngine) PublicDecrypt(ciphertext []byte) ([]byte, []byte, error) {
	cleartext, err := e.open(ciphertext)
	if err != nil {
		return nil, nil, err
	}
	return cleartext, e.decryptionProof(ciphertext, cleartext), nil
}

// VerifyDecryption reports whether proof shows cleartext is the
// decryption of ciphertext.
func (e *LocalEngine) VerifyDecryption(ciphertext, cleartext, proof []byte) bool {
	return hmac.Equal(proof, e.decryptionProof(ciphertext, cleartext))
}

func (e *LocalEngine) open(ciphertext []byte) ([]byte, error) {
	ns := e.aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, fmt.Errorf("ciphertext too short")
	}
	cleartext, err := e.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("open ciphertext: %w", err)
	}
	return cleartext, nil
}

func (e *LocalEngine) importProof(ciphertext []byte, owningContext, subject string) []byte {
	mac := hmac.New(sha256.New, e.proofKey)
	mac.Write([]byte("import\x00"))
	mac.Write(ciphertext)
	mac.Write([]byte("\x00" + owningContext + "\x00" + subject))
	return mac.Sum(nil)
}

func (e *LocalEngine) decryptionProof(ciphertext, cleartext []byte) []byte {
	mac := hmac.New(sha256.New, e.proofKey)
	mac.Write([]byte("decrypt\x00"))
	mac.Write(ciphertext)
	mac.Write([]byte{0})
	mac.Write(cleartext)
	return mac.Sum(nil)
}

// boolMask normalizes an encoded boolean to exactly 0 or 1 without
// branching on its value.
func boolMask(v []byte) []byte {
	x := DecodeUint64(v)
	// 0 -> 0, nonzero -> 1
	x = (x | -x) >> 63
	return EncodeUint64(x)
}
