package storage

import (
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// LocalStorage keeps the cleartexts a subject has decrypted, encrypted
// at rest with the AEAD derived from its client certificate.
type LocalStorage struct {
	Entries []Entry `json:"entries"`
	mu      sync.Mutex
}

const storageFile = "covault-cache.json"

// Load reads the cache file; a missing file yields an empty cache.
func (ls *LocalStorage) Load() error {
	f, err := os.Open(storageFile)
	if err != nil {
		if os.IsNotExist(err) {
			ls.Entries = []Entry{}
			return nil
		}
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(ls)
}

// Save writes the cache file.
func (ls *LocalStorage) Save() error {
	f, err := os.Create(storageFile)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(ls)
}

// Put encrypts value and stores it under the handle id, replacing any
// previous entry for the same handle.
func (ls *LocalStorage) Put(aead cipher.AEAD, handleID, typ string, value []byte, comment string) error {
	blob, err := Seal(aead, value)
	if err != nil {
		return err
	}
	e := Entry{
		HandleID: handleID,
		Type:     typ,
		Value:    base64.StdEncoding.EncodeToString(blob),
		Comment:  comment,
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	for i, old := range ls.Entries {
		if old.HandleID == handleID {
			ls.Entries[i] = e
			return nil
		}
	}
	ls.Entries = append(ls.Entries, e)
	return nil
}

// Get decrypts and returns the cached cleartext for the handle id, or
// nil if not cached.
func (ls *LocalStorage) Get(aead cipher.AEAD, handleID string) ([]byte, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for _, e := range ls.Entries {
		if e.HandleID == handleID {
			blob, err := base64.StdEncoding.DecodeString(e.Value)
			if err != nil {
				return nil, fmt.Errorf("decode entry: %w", err)
			}
			return Open(aead, blob)
		}
	}
	return nil, nil
}

// List prints the cached handle ids and their types.
func (ls *LocalStorage) List() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	fmt.Println("Cached values:")
	for _, e := range ls.Entries {
		fmt.Printf("  %s (%s) %s\n", e.HandleID, e.Type, e.Comment)
	}
}

// Delete removes the entry for the handle id, reporting whether it
// existed.
func (ls *LocalStorage) Delete(handleID string) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for i, e := range ls.Entries {
		if e.HandleID == handleID {
			ls.Entries = append(ls.Entries[:i], ls.Entries[i+1:]...)
			return true
		}
	}
	return false
}
