package storage

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Register obtains a client certificate for the given subject identity
// and saves it next to the binary.
func Register(baseURL, subject, caPath string) error {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return errors.New("failed to parse CA cert")
	}
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: caPool}}}

	payload := map[string]string{"subject": subject}
	b, _ := json.Marshal(payload)
	resp, err := client.Post(baseURL+"/api/register", "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("register failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", string(data))
	}

	var certData map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certData); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if err := os.WriteFile("client.crt", []byte(certData["cert"]), 0600); err != nil {
		return fmt.Errorf("failed to save client.crt: %w", err)
	}
	if err := os.WriteFile("client.key", []byte(certData["key"]), 0600); err != nil {
		return fmt.Errorf("failed to save client.key: %w", err)
	}

	fmt.Println("Registration successful. Certificate and key saved.")
	return nil
}

// LoadClientCertificate builds an HTTP client that presents the subject
// certificate over mutual TLS.
func LoadClientCertificate(certFile, keyFile, caFile string) (*http.Client, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert/key: %w", err)
	}
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	caPool.AppendCertsFromPEM(caCert)

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      caPool,
		},
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}, nil
}

// API is a thin client for the covault HTTP surface.
type API struct {
	Client  *http.Client
	BaseURL string
}

// post sends body as JSON to path and decodes the response into out.
func (a *API) post(path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := a.Client.Post(a.BaseURL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HandleInfo is the handle metadata the server returns.
type HandleInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Provision imports a long-lived value as admin (import + self-grant).
func (a *API) Provision(ciphertext, proof []byte, typ string) (HandleInfo, error) {
	var h HandleInfo
	err := a.post("/api/secrets", map[string]any{
		"ciphertext": ciphertext, "type": typ, "proof": proof,
	}, &h)
	return h, err
}

// Grant issues a grant on a handle.
func (a *API) Grant(handleID, subject, kind string) error {
	return a.post("/api/handles/"+handleID+"/grant", map[string]string{
		"subject": subject, "kind": kind,
	}, nil)
}

// SetRole assigns an account's encrypted role flag (admin only).
func (a *API) SetRole(account string, ciphertext, proof []byte) (HandleInfo, error) {
	var h HandleInfo
	err := a.post("/api/roles", map[string]any{
		"account": account, "ciphertext": ciphertext, "proof": proof,
	}, &h)
	return h, err
}

// Read performs the ad hoc guarded read of a value, returning the
// cleartext the caller's role admits (zero otherwise).
func (a *API) Read(valueID string) ([]byte, error) {
	var out struct {
		Cleartext []byte `json:"cleartext"`
	}
	if err := a.post("/api/read", map[string]string{"value": valueID}, &out); err != nil {
		return nil, err
	}
	return out.Cleartext, nil
}

// Decrypt performs selective decryption of handles the caller holds
// grants for.
func (a *API) Decrypt(handleIDs []string) ([][]byte, error) {
	var out struct {
		Cleartexts [][]byte `json:"cleartexts"`
	}
	if err := a.post("/api/decrypt", map[string]any{"handles": handleIDs}, &out); err != nil {
		return nil, err
	}
	return out.Cleartexts, nil
}
