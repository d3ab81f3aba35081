package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sealedvote/sealedvote-node/api"
	"github.com/sealedvote/sealedvote-node/log"
)

// APIService owns the lifecycle of the HTTP API server.
type APIService struct {
	API  *api.API
	mu   sync.Mutex
	conf *api.APIConfig
	up   bool
}

// NewAPI prepares an API service with the given configuration. The server
// does not listen until Start is called.
func NewAPI(conf *api.APIConfig, disableLogging bool) *APIService {
	if disableLogging {
		api.DisabledLogging = disableLogging
		log.Debugw("API request logging is disabled")
	}
	return &APIService{conf: conf}
}

// Start launches the HTTP server. Calling Start on a running service is an
// error.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.up {
		return fmt.Errorf("service already running")
	}

	var err error
	as.API, err = api.New(as.conf)
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	as.up = true
	return nil
}

// Stop marks the service as stopped. The listener itself lives for the
// remainder of the process.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.up = false
}

// HostPort returns the configured bind address of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.conf.Host, as.conf.Port
}
