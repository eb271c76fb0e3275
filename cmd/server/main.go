// Package main initializes and starts the covault HTTPS server, setting
// up configuration, logging, the database, the cryptographic engine, the
// protocol services, handlers, and TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	nethttp "net/http"

	"github.com/covaultio/covault/internal/config"
	"github.com/covaultio/covault/internal/db"
	"github.com/covaultio/covault/internal/engine"
	"github.com/covaultio/covault/internal/logger"
	"github.com/covaultio/covault/internal/repository"
	"github.com/covaultio/covault/internal/server/handler/http"
	"github.com/covaultio/covault/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()
	addr := options.Port

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("Info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	if options.Admin == "" {
		zapLogger.Fatal("no admin identity configured (-admin or COVAULT_ADMIN)")
	}

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Prune old audit events in the background.
	db.StartAuditPruner(context.Background(), postgresDB,
		time.Hour,       // interval
		90*24*time.Hour, // retention: 90 days
		zapLogger,
	)

	// Initialize repositories.
	subjectRepo := repository.NewPostgresSubjectRepository(postgresDB)
	auditRepo := repository.NewPostgresAuditRepository(postgresDB)
	commitmentRepo := repository.NewPostgresCommitmentRepository(postgresDB)

	// Initialize the cryptographic engine.
	masterKey, err := engine.LoadOrCreateMasterKey(options.MasterKeyPath)
	if err != nil {
		zapLogger.Fatal("cannot load master key", zap.Error(err))
	}
	eng, err := engine.NewLocalEngine(masterKey)
	if err != nil {
		zapLogger.Fatal("cannot init engine", zap.Error(err))
	}

	// Initialize the protocol core for this owning context.
	vault, err := service.NewVault(context.Background(),
		options.Context, options.Admin, eng, auditRepo, commitmentRepo, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot init vault", zap.Error(err))
	}
	registrar := service.NewRegistrar(subjectRepo)

	// Create HTTP handlers.
	authHandler := &http.AuthHandler{
		Registrar:  registrar,
		CACertPath: "certs/ca.crt",
		CAKeyPath:  "certs/ca.key",
	}
	handlesHandler := &http.HandlesHandler{Vault: vault}
	decryptHandler := &http.DecryptHandler{Decryption: vault}
	auditHandler := &http.AuditHandler{Audit: auditRepo, Context: options.Context}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, handlesHandler, decryptHandler, auditHandler, zapLogger)

	// Load server TLS certificate and key.
	cert, err := tls.LoadX509KeyPair("certs/server.crt", "certs/server.key")
	if err != nil {
		zapLogger.Fatal("failed to load server TLS cert/key", zap.Error(err))
	}

	// Load and append CA certificate for client cert verification.
	caCert, err := os.ReadFile("certs/ca.crt")
	if err != nil {
		zapLogger.Fatal("failed to read CA cert", zap.Error(err))
	}
	caCertPool := x509.NewCertPool()
	if ok := caCertPool.AppendCertsFromPEM(caCert); !ok {
		zapLogger.Fatal("failed to append CA cert to pool")
	}

	// Configure TLS to require or verify client certificates.
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    caCertPool,
		MinVersion:   tls.VersionTLS12,
	}

	// Create and start the HTTPS server.
	server := &nethttp.Server{
		Addr:      addr,
		Handler:   router,
		TLSConfig: tlsConfig,
	}

	zapLogger.Info("starting HTTPS server",
		zap.String("addr", addr),
		zap.String("context", options.Context),
		zap.String("admin", options.Admin))
	if err := server.ListenAndServeTLS("", ""); err != nil {
		zapLogger.Fatal("failed to start HTTPS server", zap.Error(err))
	}
}
