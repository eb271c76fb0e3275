package certgen

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"
)

// setupTestCA generates a self-signed CA and returns its PEM encodings
// together with the parsed certificate and key.
func setupTestCA(t *testing.T) (certPEM []byte, keyPEM []byte, caCert *x509.Certificate, caKey *ecdsa.PrivateKey) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate CA key: %v", err)
	}
	serial, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create CA cert: %v", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	// Parse the DER back: the template lacks the fields signature
	// verification needs (public key, signature algorithm).
	caCert, err = x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse CA cert: %v", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal CA key: %v", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return certPEM, keyPEM, caCert, priv
}

func writeTemp(t *testing.T, pattern string, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return f.Name()
}

func TestLoadCACredentials_Success(t *testing.T) {
	certPEM, keyPEM, wantCert, wantKey := setupTestCA(t)

	certPath := writeTemp(t, "ca-cert-*.pem", certPEM)
	keyPath := writeTemp(t, "ca-key-*.pem", keyPEM)

	certOut, keyOut, err := LoadCACredentials(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadCACredentials error: %v", err)
	}
	if certOut.Subject.CommonName != wantCert.Subject.CommonName {
		t.Errorf("CommonName = %q; want %q", certOut.Subject.CommonName, wantCert.Subject.CommonName)
	}
	parsedKey, ok := keyOut.(*ecdsa.PrivateKey)
	if !ok {
		t.Fatalf("key type = %T; want *ecdsa.PrivateKey", keyOut)
	}
	if parsedKey.PublicKey.X.Cmp(wantKey.PublicKey.X) != 0 {
		t.Error("public key X mismatch")
	}
}

func TestLoadCACredentials_MissingCert(t *testing.T) {
	_, _, err := LoadCACredentials("/no/such/file.pem", "ignored")
	if err == nil || !strings.Contains(err.Error(), "read ca cert") {
		t.Errorf("got %v; want error about reading ca cert", err)
	}
}

func TestLoadCACredentials_BadCertPEM(t *testing.T) {
	certPath := writeTemp(t, "ca-cert-*.pem", []byte("not a cert"))
	_, keyPEM, _, _ := setupTestCA(t)
	keyPath := writeTemp(t, "ca-key-*.pem", keyPEM)

	_, _, err := LoadCACredentials(certPath, keyPath)
	if err == nil || !strings.Contains(err.Error(), "invalid CA cert PEM") {
		t.Errorf("got %v; want invalid CA cert PEM error", err)
	}
}

func TestLoadCACredentials_BadKeyPEM(t *testing.T) {
	certPEM, _, _, _ := setupTestCA(t)
	certPath := writeTemp(t, "ca-cert-*.pem", certPEM)
	keyPath := writeTemp(t, "ca-key-*.pem", []byte("not a key"))

	_, _, err := LoadCACredentials(certPath, keyPath)
	if err == nil || !strings.Contains(err.Error(), "invalid CA key PEM") {
		t.Errorf("got %v; want invalid CA key PEM error", err)
	}
}

func TestGenerateSubjectCertificate_Success(t *testing.T) {
	_, _, caCert, caKey := setupTestCA(t)

	certPEM, keyPEM, err := GenerateSubjectCertificate("alice", caCert, caKey)
	if err != nil {
		t.Fatalf("GenerateSubjectCertificate error: %v", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("cert PEM invalid")
	}
	subjCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse subject cert: %v", err)
	}
	if subjCert.Subject.CommonName != "alice" {
		t.Errorf("CommonName = %q; want %q", subjCert.Subject.CommonName, "alice")
	}
	if err := subjCert.CheckSignatureFrom(caCert); err != nil {
		t.Errorf("signature check failed: %v", err)
	}

	block2, _ := pem.Decode(keyPEM)
	if block2 == nil || block2.Type != "EC PRIVATE KEY" {
		t.Fatalf("key PEM invalid")
	}
	if _, err := x509.ParseECPrivateKey(block2.Bytes); err != nil {
		t.Errorf("parse private key failed: %v", err)
	}
}
