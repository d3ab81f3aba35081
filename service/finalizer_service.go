// Package service provides Start/Stop wrappers around the node components so
// they can be composed by the command line entrypoints.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sealedvote/sealedvote-node/authority"
	"github.com/sealedvote/sealedvote-node/finalizer"
	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/registry"
	"github.com/sealedvote/sealedvote-node/storage"
)

// FinalizerService drives the decryption and publication of closed polls,
// either on a timer or on demand.
type FinalizerService struct {
	*finalizer.Finalizer
	cancel context.CancelFunc
}

// NewFinalizer builds a finalizer service around the given registry and
// decryption authority.
func NewFinalizer(reg *registry.Registry, auth *authority.Authority, stg *storage.Storage) *FinalizerService {
	return &FinalizerService{
		Finalizer: finalizer.New(reg, auth, stg),
	}
}

// Start launches the finalizer loop. monitorInterval sets how often closed
// polls are swept for publication; zero disables the sweep so polls publish
// only on demand. Starting a running service is an error.
func (fs *FinalizerService) Start(ctx context.Context, monitorInterval time.Duration) error {
	if fs.cancel != nil {
		return fmt.Errorf("service already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	fs.cancel = cancel

	fs.Finalizer.Start(ctx, monitorInterval)
	log.Infow("finalizer service started")
	return nil
}

// Stop cancels the finalizer loop and waits for its goroutines to exit, so
// the database can be closed safely afterwards.
func (fs *FinalizerService) Stop() {
	if fs.cancel == nil {
		return
	}
	fs.cancel()
	fs.cancel = nil
	if fs.Finalizer != nil {
		fs.Close()
	}
	log.Infow("finalizer service stopped")
}
