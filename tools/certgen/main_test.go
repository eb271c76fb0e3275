package main

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/covaultio/covault/internal/certgen"
)

func TestGenerateCA(t *testing.T) {
	caCert, caKey, err := generateCA("covault CA")
	if err != nil {
		t.Fatalf("generateCA: %v", err)
	}

	if caCert.Subject.CommonName != "covault CA" {
		t.Errorf("CommonName = %q; want \"covault CA\"", caCert.Subject.CommonName)
	}
	if !caCert.IsCA || !caCert.BasicConstraintsValid {
		t.Error("CA certificate must carry IsCA and BasicConstraintsValid")
	}
	if caCert.KeyUsage&x509.KeyUsageCertSign == 0 {
		t.Errorf("KeyUsage = %v; want CertSign set", caCert.KeyUsage)
	}
	if dur := caCert.NotAfter.Sub(caCert.NotBefore); dur < 9*365*24*time.Hour {
		t.Errorf("CA validity too short: %v", dur)
	}
	// The CA must be able to verify certificates it signed.
	if err := caCert.CheckSignatureFrom(caCert); err != nil {
		t.Errorf("self-signature check failed: %v", err)
	}
	if caKey.Curve.Params().Name != "P-256" {
		t.Errorf("curve = %s; want P-256", caKey.Curve.Params().Name)
	}
}

func TestServerCertificate(t *testing.T) {
	caCert, caKey, err := generateCA("covault CA")
	if err != nil {
		t.Fatal(err)
	}
	certPEM, keyPEM, err := serverCertificate("vault.internal", caCert, caKey)
	if err != nil {
		t.Fatalf("serverCertificate: %v", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatal("cert PEM invalid")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	if !reflect.DeepEqual(cert.DNSNames, []string{"vault.internal"}) {
		t.Errorf("DNSNames = %v; want [vault.internal]", cert.DNSNames)
	}
	if err := cert.CheckSignatureFrom(caCert); err != nil {
		t.Errorf("certificate not signed by CA: %v", err)
	}

	serverOnly := len(cert.ExtKeyUsage) == 1 && cert.ExtKeyUsage[0] == x509.ExtKeyUsageServerAuth
	if !serverOnly {
		t.Errorf("ExtKeyUsage = %v; want ServerAuth only", cert.ExtKeyUsage)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil || keyBlock.Type != "EC PRIVATE KEY" {
		t.Fatal("key PEM invalid")
	}
	if _, err := x509.ParseECPrivateKey(keyBlock.Bytes); err != nil {
		t.Errorf("parse key: %v", err)
	}
}

func TestSubjectIssuance_MatchesServerSidePath(t *testing.T) {
	// The tool issues the seed subjects through the same code the server
	// uses at registration, so its output must chain to the tool's CA.
	caCert, caKey, err := generateCA("covault CA")
	if err != nil {
		t.Fatal(err)
	}
	certPEM, _, err := certgen.GenerateSubjectCertificate("admin", caCert, caKey)
	if err != nil {
		t.Fatalf("issue subject certificate: %v", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		t.Fatal("cert PEM invalid")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	if cert.Subject.CommonName != "admin" {
		t.Errorf("CommonName = %q; want admin", cert.Subject.CommonName)
	}
	if err := cert.CheckSignatureFrom(caCert); err != nil {
		t.Errorf("subject certificate not signed by CA: %v", err)
	}
}

func TestWritePair(t *testing.T) {
	dir := t.TempDir()
	caCert, caKey, err := generateCA("covault CA")
	if err != nil {
		t.Fatal(err)
	}
	if err := writeCA(dir, caCert, caKey); err != nil {
		t.Fatalf("writeCA: %v", err)
	}

	certPEM, err := os.ReadFile(filepath.Join(dir, "ca.crt"))
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatal("expected CERTIFICATE PEM block")
	}
	parsed, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	if !reflect.DeepEqual(parsed.Raw, caCert.Raw) {
		t.Error("written certificate does not match original")
	}

	info, err := os.Stat(filepath.Join(dir, "ca.key"))
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key mode = %o; want 600", info.Mode().Perm())
	}

	// The written pair must load through the server's CA loader.
	if _, _, err := certgen.LoadCACredentials(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")); err != nil {
		t.Errorf("LoadCACredentials on tool output: %v", err)
	}
}
