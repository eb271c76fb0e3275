// Command certgen bootstraps the PKI of a covault deployment: the CA,
// the server's TLS certificate, and client certificates for the initial
// subjects. The server issues further subject certificates itself at
// registration; this tool only seeds what must exist before first boot,
// which normally means the CA, the server, and the admin subject.
package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/covaultio/covault/internal/certgen"
)

func main() {
	var (
		outDir     = flag.String("out", "certs", "output directory for certificates and keys")
		serverName = flag.String("server", "localhost", "DNS name of the server certificate")
		subjects   = flag.String("subjects", "admin", "comma-separated subject identities to pre-issue client certificates for")
		caCN       = flag.String("ca-cn", "covault CA", "common name of the certificate authority")
	)
	flag.Parse()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create %s: %v", *outDir, err)
	}

	caCert, caKey, err := generateCA(*caCN)
	if err != nil {
		log.Fatalf("generate CA: %v", err)
	}
	if err := writeCA(*outDir, caCert, caKey); err != nil {
		log.Fatalf("write CA: %v", err)
	}

	serverCertPEM, serverKeyPEM, err := serverCertificate(*serverName, caCert, caKey)
	if err != nil {
		log.Fatalf("generate server certificate: %v", err)
	}
	if err := writePair(*outDir, "server", serverCertPEM, serverKeyPEM); err != nil {
		log.Fatalf("write server certificate: %v", err)
	}

	for _, subject := range strings.Split(*subjects, ",") {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			continue
		}
		certPEM, keyPEM, err := certgen.GenerateSubjectCertificate(subject, caCert, caKey)
		if err != nil {
			log.Fatalf("issue certificate for %s: %v", subject, err)
		}
		if err := writePair(*outDir, subject, certPEM, keyPEM); err != nil {
			log.Fatalf("write certificate for %s: %v", subject, err)
		}
	}

	fmt.Printf("certificates written to %s\n", *outDir)
}

// generateCA creates a self-signed ECDSA P-256 certificate authority
// valid for 10 years.
func generateCA(commonName string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Now().Add(-1 * time.Minute),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, key, nil
}

// serverCertificate issues the server's TLS certificate for the given
// DNS name, signed by the CA and valid for one year.
func serverCertificate(dnsName string, caCert *x509.Certificate, caKey *ecdsa.PrivateKey) (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: dnsName},
		DNSNames:              []string{dnsName},
		NotBefore:             time.Now().Add(-1 * time.Minute),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal key: %w", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

// writeCA writes ca.crt and ca.key. The key file is what the server
// loads to issue subject certificates, so it must stay private.
func writeCA(dir string, cert *x509.Certificate, key *ecdsa.PrivateKey) error {
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return writePair(dir, "ca", certPEM, keyPEM)
}

// writePair writes <name>.crt and <name>.key into dir, the key with
// owner-only permissions.
func writePair(dir, name string, certPEM, keyPEM []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name+".crt"), certPEM, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+".key"), keyPEM, 0o600)
}
