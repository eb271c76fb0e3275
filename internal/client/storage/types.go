package storage

// Entry is one locally cached cleartext, keyed by the handle it was
// decrypted from. The value is AEAD-encrypted at rest.
type Entry struct {
	HandleID string `json:"handle_id"`
	Type     string `json:"type"`
	Value    string `json:"value"` // base64-encoded encrypted cleartext
	Comment  string `json:"comment"`
}
