// Package api provides the HTTP API for the sealedvote node, exposing poll
// lifecycle management, encrypted vote submission and published results over
// JSON endpoints.
package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sealedvote/sealedvote-node/finalizer"
	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/registry"
	"github.com/sealedvote/sealedvote-node/storage"
	"github.com/sealedvote/sealedvote-node/types"
)

const maxRequestBodyLog = 512 // max number of bytes to log from request bodies

// APIConfig type represents the configuration for the API HTTP server.
// It includes the network address to bind to and the node components the
// handlers are served from.
type APIConfig struct {
	Host          string
	Port          int
	Registry      *registry.Registry
	Finalizer     *finalizer.Finalizer // optional, enables on-demand publication
	Storage       *storage.Storage
	Network       string
	Version       string
	CurveType     string
	EncryptionKey types.HexBytes // marshaled scheme public key, served on /info
	Authority     common.Address
}

// API type represents the API HTTP server with JSON responses.
type API struct {
	router        *chi.Mux
	registry      *registry.Registry
	finalizer     *finalizer.Finalizer
	storage       *storage.Storage
	network       string
	version       string
	curveType     string
	encryptionKey types.HexBytes
	authority     common.Address
}

// New creates a new API instance with the given configuration and starts the
// HTTP server in the background.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Registry == nil {
		return nil, fmt.Errorf("missing poll registry")
	}
	if conf.Storage == nil {
		return nil, fmt.Errorf("missing storage")
	}
	a := &API{
		registry:      conf.Registry,
		finalizer:     conf.Finalizer,
		storage:       conf.Storage,
		network:       conf.Network,
		version:       conf.Version,
		curveType:     conf.CurveType,
		encryptionKey: conf.EncryptionKey,
		authority:     conf.Authority,
	}
	a.initRouter()
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		addr := net.JoinHostPort(conf.Host, fmt.Sprintf("%d", conf.Port))
		if err := http.ListenAndServe(addr, a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes.
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	// The ping endpoint is used to check if the API is up and running.
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", InfoEndpoint, "method", "GET")
	a.router.Get(InfoEndpoint, a.nodeInfo)
	log.Infow("register handler", "endpoint", PollsEndpoint, "method", "POST")
	a.router.Post(PollsEndpoint, a.createPoll)
	log.Infow("register handler", "endpoint", PollsEndpoint, "method", "GET")
	a.router.Get(PollsEndpoint, a.pollList)
	log.Infow("register handler", "endpoint", PollEndpoint, "method", "GET")
	a.router.Get(PollEndpoint, a.poll)
	log.Infow("register handler", "endpoint", PollVotesEndpoint, "method", "POST")
	a.router.Post(PollVotesEndpoint, a.newVote)
	log.Infow("register handler", "endpoint", PollTalliesEndpoint, "method", "GET")
	a.router.Get(PollTalliesEndpoint, a.pollTallies)
	log.Infow("register handler", "endpoint", PollFinalizeEndpoint, "method", "POST")
	a.router.Post(PollFinalizeEndpoint, a.finalizePoll)
	log.Infow("register handler", "endpoint", PollResultsEndpoint, "method", "POST")
	a.router.Post(PollResultsEndpoint, a.publishResults)
	log.Infow("register handler", "endpoint", PollResultsEndpoint, "method", "GET")
	a.router.Get(PollResultsEndpoint, a.pollResults)
	log.Infow("register handler", "endpoint", PollParticipantEndpoint, "method", "GET")
	a.router.Get(PollParticipantEndpoint, a.pollParticipant)
	log.Infow("register handler", "endpoint", MetadataSetEndpoint, "method", "POST")
	a.router.Post(MetadataSetEndpoint, a.setMetadata)
	log.Infow("register handler", "endpoint", MetadataGetEndpoint, "method", "GET")
	a.router.Get(MetadataGetEndpoint, a.fetchMetadata)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() http.Handler {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(loggingMiddleware(maxRequestBodyLog))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
	return a.router
}
