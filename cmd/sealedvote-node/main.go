package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sealedvote/sealedvote-node/api"
	"github.com/sealedvote/sealedvote-node/archiver"
	"github.com/sealedvote/sealedvote-node/authority"
	"github.com/sealedvote/sealedvote-node/config"
	"github.com/sealedvote/sealedvote-node/crypto/signatures/ethereum"
	"github.com/sealedvote/sealedvote-node/db/metadb"
	"github.com/sealedvote/sealedvote-node/fhe/localfhe"
	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/participation"
	"github.com/sealedvote/sealedvote-node/registry"
	"github.com/sealedvote/sealedvote-node/service"
	"github.com/sealedvote/sealedvote-node/storage"
)

// Services holds all the running services
type Services struct {
	Storage       *storage.Storage
	Participation *participation.ParticipationDB
	Registry      *registry.Registry
	Finalizer     *service.FinalizerService
	API           *service.APIService
	Archiver      *service.ArchiverService
}

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting sealedvote-node", "version", Version, "network", cfg.Network)

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup services
	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// authoritySigner returns the attestation signer for the decryption
// authority. Outside the local profile the key comes from the configuration;
// a local node without one gets an ephemeral key for the lifetime of the run.
func authoritySigner(cfg *Config) (*ethereum.Signer, error) {
	if cfg.Authority.PrivKey != "" {
		return ethereum.NewSignerFromHex(cfg.Authority.PrivKey)
	}
	signer, err := ethereum.NewSigner()
	if err != nil {
		return nil, err
	}
	log.Warnw("no authority key configured, generated an ephemeral one",
		"address", signer.Address().Hex())
	return signer, nil
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}
	profile := config.DefaultProfiles[cfg.Network]

	// Initialize storage database
	log.Infow("initializing storage", "datadir", cfg.Datadir, "type", cfg.DB.Type)
	storagedb, err := metadb.New(cfg.DB.Type, cfg.Datadir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	services.Storage = storage.New(storagedb)

	// Initialize the decryption authority signer
	signer, err := authoritySigner(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize authority signer: %w", err)
	}

	// Initialize the encrypted tally scheme
	log.Infow("initializing tally scheme",
		"curve", profile.CurveType,
		"maxMessage", profile.MaxMessage,
		"authority", signer.Address().Hex())
	scheme, err := localfhe.New(services.Storage.FHEDatabase(), localfhe.Config{
		CurveType:  profile.CurveType,
		MaxMessage: profile.MaxMessage,
		Authority:  signer.Address(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tally scheme: %w", err)
	}

	// Initialize the participation trees
	services.Participation, err = participation.New(filepath.Join(cfg.Datadir, "participation"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize participation trees: %w", err)
	}

	// Create the poll registry
	services.Registry = registry.New(services.Storage, scheme, services.Participation, registry.Config{
		StrictProofs: profile.StrictProofs,
	})

	// Create the decryption authority
	auth, err := authority.New(scheme, signer, authority.Config{AttachProofs: true})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize decryption authority: %w", err)
	}

	// Start finalizer service
	log.Infow("starting finalizer service", "monitorInterval", cfg.Finalizer.Interval.String())
	services.Finalizer = service.NewFinalizer(services.Registry, auth, services.Storage)
	if err := services.Finalizer.Start(ctx, cfg.Finalizer.Interval); err != nil {
		return nil, fmt.Errorf("failed to start finalizer service: %w", err)
	}

	// Start API service
	log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port)
	services.API = service.NewAPI(&api.APIConfig{
		Host:          cfg.API.Host,
		Port:          cfg.API.Port,
		Registry:      services.Registry,
		Finalizer:     services.Finalizer.Finalizer,
		Storage:       services.Storage,
		Network:       cfg.Network,
		Version:       Version,
		CurveType:     profile.CurveType,
		EncryptionKey: scheme.PublicKey().Marshal(),
		Authority:     signer.Address(),
	}, false)
	if err := services.API.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start API service: %w", err)
	}

	// Start archiver service if enabled
	if cfg.Archiver.Enabled {
		log.Infow("starting archiver service", "host", cfg.Archiver.Host, "space", cfg.Archiver.Space)
		services.Archiver, err = service.NewArchiver(services.Registry, services.Storage, &archiver.S3Config{
			Enabled:   true,
			HostBase:  cfg.Archiver.Host,
			AccessKey: cfg.Archiver.AccessKey,
			SecretKey: cfg.Archiver.SecretKey,
			Space:     cfg.Archiver.Space,
			Bucket:    cfg.Archiver.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize archiver service: %w", err)
		}
		if err := services.Archiver.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start archiver service: %w", err)
		}
	}

	log.Info("sealedvote-node is running, ready to accept votes!")
	return services, nil
}

// shutdownServices gracefully shuts down all services
func shutdownServices(services *Services) {
	if services == nil {
		return
	}

	// Stop services in reverse order of startup
	if services.Archiver != nil {
		services.Archiver.Stop()
	}
	if services.API != nil {
		services.API.Stop()
	}
	if services.Finalizer != nil {
		services.Finalizer.Stop()
	}
	if services.Participation != nil {
		if err := services.Participation.Close(); err != nil {
			log.Warnw("failed to close participation trees", "err", err)
		}
	}
	if services.Storage != nil {
		services.Storage.Close()
	}
}
