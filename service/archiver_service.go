package service

import (
	"context"
	"fmt"

	"github.com/sealedvote/sealedvote-node/archiver"
	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/registry"
	"github.com/sealedvote/sealedvote-node/storage"
	"github.com/sealedvote/sealedvote-node/types"
)

// ArchiverService represents a service that exports published poll results to
// an S3 compatible bucket.
type ArchiverService struct {
	archiver *archiver.Archiver
	cancel   context.CancelFunc
}

// NewArchiver creates a new archiver service instance. It returns an error if
// the S3 export configuration is missing or incomplete.
func NewArchiver(reg *registry.Registry, stg *storage.Storage, cfg *archiver.S3Config) (*ArchiverService, error) {
	arch, err := archiver.New(reg, stg, cfg)
	if err != nil {
		return nil, err
	}
	return &ArchiverService{archiver: arch}, nil
}

// Start begins the archiver service. It returns an error if the service is
// already running or if the bucket is not reachable.
func (ar *ArchiverService) Start(ctx context.Context) error {
	if ar.cancel != nil {
		return fmt.Errorf("service already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	ar.cancel = cancel

	if err := ar.archiver.Start(ctx); err != nil {
		ar.cancel = nil
		cancel()
		return fmt.Errorf("failed to start archiver: %w", err)
	}

	log.Infow("archiver service started")
	return nil
}

// Stop halts the archiver service.
func (ar *ArchiverService) Stop() {
	if ar.cancel != nil {
		ar.cancel()
		ar.cancel = nil

		ar.archiver.Stop()

		log.Infow("archiver service stopped")
	}
}

// ArchivePoll exports the published results of a single poll immediately,
// bypassing the event subscription. It returns the bucket key written.
func (ar *ArchiverService) ArchivePoll(ctx context.Context, pollID types.PollID) (string, error) {
	return ar.archiver.ArchivePoll(ctx, pollID)
}
