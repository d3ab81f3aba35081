package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/sealedvote/sealedvote-node/api"
	"github.com/sealedvote/sealedvote-node/api/client"
	"github.com/sealedvote/sealedvote-node/authority"
	"github.com/sealedvote/sealedvote-node/crypto/ecc"
	"github.com/sealedvote/sealedvote-node/crypto/ecc/curves"
	"github.com/sealedvote/sealedvote-node/crypto/elgamal"
	"github.com/sealedvote/sealedvote-node/crypto/signatures/ethereum"
	"github.com/sealedvote/sealedvote-node/db"
	"github.com/sealedvote/sealedvote-node/db/metadb"
	"github.com/sealedvote/sealedvote-node/fhe/localfhe"
	"github.com/sealedvote/sealedvote-node/internal"
	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/participation"
	"github.com/sealedvote/sealedvote-node/registry"
	"github.com/sealedvote/sealedvote-node/service"
	"github.com/sealedvote/sealedvote-node/storage"
	"github.com/sealedvote/sealedvote-node/types"
	"github.com/sealedvote/sealedvote-node/util"
)

const (
	defaultNodeHost = "0.0.0.0"
	defaultNodePort = 9090
)

var defaultNodeEndpoint = fmt.Sprintf("http://%s:%d", defaultNodeHost, defaultNodePort)

func main() {
	// define cli flags
	var (
		nodeEndpoint  = flag.String("node", defaultNodeEndpoint, "node API endpoint")
		pollName      = flag.String("name", "sealedvote e2e poll", "name of the poll to create")
		pollOptions   = flag.StringSlice("options", []string{"yes", "no", "abstain"}, "poll options")
		pollDuration  = flag.Duration("pollDuration", 30*time.Second, "length of the voting window")
		voteCount     = flag.Int("voteCount", 10, "number of votes to cast")
		voteSleepTime = flag.Duration("voteSleepTime", time.Second, "time to sleep between votes")
		testTimeout   = flag.Duration("timeout", 10*time.Minute, "timeout for the whole flow")
	)
	flag.Parse()
	log.Init("debug", "stdout", nil)

	// Create a context with the flow timeout
	testCtx, cancel := context.WithTimeout(context.Background(), *testTimeout)
	defer cancel()

	// If no remote node endpoint is provided, start a local one
	if *nodeEndpoint == defaultNodeEndpoint {
		log.Infow("no remote node endpoint provided, starting a local one...")
		node := new(localNode)
		if err := node.Start(testCtx); err != nil {
			log.Fatal(err)
		}
		defer node.Stop()
		log.Infow("local node started", "endpoint", defaultNodeEndpoint)
	}

	// Create the API client, retrying until the node answers the ping
	connectCtx, cancelConnect := context.WithTimeout(testCtx, 2*time.Minute)
	defer cancelConnect()
	var cli *client.HTTPclient
	for cli == nil {
		var err error
		if cli, err = client.New(*nodeEndpoint); err != nil {
			log.Warnw("node not reachable yet", "endpoint", *nodeEndpoint, "err", err)
			select {
			case <-connectCtx.Done():
				log.Fatal("connect timeout")
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err := cli.CheckVersion(); err != nil {
		log.Warnw("node version mismatch", "err", err)
	}
	log.Info("connected to node")

	// Fetch the node info and recover the encryption key votes must be
	// encrypted with
	info, err := cli.Info()
	if err != nil {
		log.Fatal(err)
	}
	if len(info.EncryptionKey) == 0 {
		log.Fatal("node does not advertise an encryption key")
	}
	encKey := curves.New(info.CurveType)
	if err := encKey.Unmarshal(info.EncryptionKey); err != nil {
		log.Fatal(err)
	}
	log.Infow("node info retrieved",
		"version", info.Version,
		"network", info.Network,
		"curve", info.CurveType,
		"authority", info.Authority.Hex())

	// Create a new poll with an inline metadata document
	start := time.Now().Add(2 * time.Second)
	end := start.Add(*pollDuration)
	poll, err := cli.CreatePoll(&api.PollRequest{
		Name:      *pollName,
		Options:   *pollOptions,
		StartTime: start,
		EndTime:   end,
		Metadata:  pollMetadata(*pollName, *pollOptions),
	})
	if err != nil {
		log.Errorw(err, "failed to create poll")
		return
	}
	log.Infow("poll created",
		"id", poll.ID.String(),
		"options", poll.Options,
		"metadataURI", poll.MetadataURI)

	// Wait for the voting window to open
	if err := waitUntilAcceptingVotes(testCtx, cli, poll.ID); err != nil {
		log.Errorw(err, "poll never opened")
		return
	}

	// Cast votes with fresh voter keys, tracking the expected tally per
	// option, and verify the participation receipt of each voter
	expected := make([]uint64, len(*pollOptions))
	for i := 0; i < *voteCount; i++ {
		signer, err := ethereum.NewSigner()
		if err != nil {
			log.Fatal(err)
		}
		choice := uint64(util.RandomInt(0, len(*pollOptions)))
		envelope, err := buildVote(poll.ID, signer, encKey, choice)
		if err != nil {
			log.Errorw(err, "failed to build vote")
			return
		}
		if _, err := cli.Vote(envelope); err != nil {
			log.Errorw(err, "failed to cast vote")
			return
		}
		participant, err := cli.Participant(poll.ID, signer.Address())
		if err != nil {
			log.Errorw(err, "failed to fetch participation receipt")
			return
		}
		if !participant.Voted || !participation.VerifyReceipt(participant.Receipt) {
			log.Errorw(fmt.Errorf("receipt of %s did not verify", signer.Address().Hex()),
				"invalid participation receipt")
			return
		}
		expected[choice]++
		log.Infow("vote cast",
			"voter", signer.Address().Hex(),
			"currentVote", i+1,
			"totalVotes", *voteCount)

		// Wait the voteSleepTime before sending the next vote
		time.Sleep(*voteSleepTime)
	}

	// Ask the node to finalize once the window closes. The node monitor may
	// finalize on its own first, which is fine.
	log.Info("all votes cast, waiting for the voting window to close...")
	if err := requestFinalize(testCtx, cli, poll.ID); err != nil {
		log.Errorw(err, "failed to finalize poll")
		return
	}
	log.Infow("poll finalized", "id", poll.ID.String())

	// Wait for the decrypted results to be published and compare them with
	// the expected tally
	results, err := cli.WaitUntilPublished(testCtx, poll.ID, 2*time.Second)
	if err != nil {
		log.Errorw(err, "failed to wait for published results")
		return
	}
	if len(results.Results) != len(expected) {
		log.Errorw(fmt.Errorf("expected %d results, got %d", len(expected), len(results.Results)),
			"results mismatch")
		return
	}
	for i := range expected {
		if got := results.Results[i].MathBigInt().Uint64(); got != expected[i] {
			log.Errorw(fmt.Errorf("option %d: expected %d votes, got %d", i, expected[i], got),
				"results mismatch")
			return
		}
	}
	log.Infow("results verified",
		"id", poll.ID.String(),
		"results", results.Results,
		"voteCount", results.VoteCount.String())

	// Round-trip the metadata document through the node
	if poll.MetadataURI != "" {
		doc, err := cli.Metadata(poll.MetadataURI)
		if err != nil {
			log.Errorw(err, "failed to fetch poll metadata")
			return
		}
		log.Infow("poll metadata retrieved", "title", doc.Title["default"])
	}
	log.Info("e2e flow completed successfully!")
}

// waitUntilAcceptingVotes polls the node until the voting window of the
// given poll opens.
func waitUntilAcceptingVotes(ctx context.Context, cli *client.HTTPclient, pollID types.PollID) error {
	for {
		poll, err := cli.Poll(pollID)
		if err == nil && poll.IsAcceptingVotes {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("poll %s never started accepting votes: %w", pollID.String(), ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// requestFinalize retries the finalize call until the node clock leaves the
// voting window. A poll already finalized by the node monitor counts as
// success.
func requestFinalize(ctx context.Context, cli *client.HTTPclient, pollID types.PollID) error {
	for {
		_, err := cli.Finalize(pollID)
		if err == nil {
			return nil
		}
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) {
			return err
		}
		switch apiErr.Code {
		case api.ErrPollAlreadyFinalized.Code:
			return nil
		case api.ErrPollStillActive.Code:
			// window still open, keep waiting
		default:
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("poll %s never closed: %w", pollID.String(), ctx.Err())
		case <-time.After(time.Second):
		}
	}
}

// buildVote encrypts the choice under the node encryption key and signs the
// envelope with the voter key.
func buildVote(pollID types.PollID, signer *ethereum.Signer, encKey ecc.Point, choice uint64) (*types.VoteEnvelope, error) {
	ct, err := elgamal.NewCiphertext(encKey).Encrypt(new(big.Int).SetUint64(choice), encKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt choice: %w", err)
	}
	envelope := &types.VoteEnvelope{
		PollID:     pollID,
		Ciphertext: ct.Serialize(),
	}
	sig, err := signer.Sign(envelope.SignableBytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign vote: %w", err)
	}
	envelope.Signature = sig.Bytes()
	return envelope, nil
}

// pollMetadata builds a minimal metadata document for the poll options.
func pollMetadata(name string, options []string) *types.Metadata {
	choices := make([]types.ChoiceMetadata, len(options))
	for i, option := range options {
		choices[i] = types.ChoiceMetadata{
			Title: types.MultilingualString{"default": option},
			Value: i,
		}
	}
	return &types.Metadata{
		Title:       types.MultilingualString{"default": name},
		Description: types.MultilingualString{"default": "poll created by sealedvote-cli"},
		Choices:     choices,
		Version:     "1.0",
	}
}

// localNode runs a throwaway in-process node: in-memory storage, a temporary
// participation directory and an ephemeral decryption authority.
type localNode struct {
	dataDir       string
	storage       *storage.Storage
	participation *participation.ParticipationDB
	finalizer     *service.FinalizerService
	api           *service.APIService
}

func (n *localNode) Start(ctx context.Context) error {
	database, err := metadb.New(db.TypeInMemory, "")
	if err != nil {
		return fmt.Errorf("failed to create in-memory database: %w", err)
	}
	n.storage = storage.New(database)

	signer, err := ethereum.NewSigner()
	if err != nil {
		return fmt.Errorf("failed to create authority signer: %w", err)
	}
	scheme, err := localfhe.New(n.storage.FHEDatabase(), localfhe.Config{
		Authority: signer.Address(),
	})
	if err != nil {
		return fmt.Errorf("failed to create tally scheme: %w", err)
	}

	n.dataDir, err = os.MkdirTemp("", "sealedvote-cli-*")
	if err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	n.participation, err = participation.New(filepath.Join(n.dataDir, "participation"))
	if err != nil {
		return fmt.Errorf("failed to create participation trees: %w", err)
	}

	reg := registry.New(n.storage, scheme, n.participation, registry.Config{StrictProofs: true})
	auth, err := authority.New(scheme, signer, authority.Config{AttachProofs: true})
	if err != nil {
		return fmt.Errorf("failed to create decryption authority: %w", err)
	}

	// Start finalizer service with a short monitor interval
	n.finalizer = service.NewFinalizer(reg, auth, n.storage)
	if err := n.finalizer.Start(ctx, 2*time.Second); err != nil {
		return fmt.Errorf("failed to start finalizer: %w", err)
	}

	// Start API service
	n.api = service.NewAPI(&api.APIConfig{
		Host:          defaultNodeHost,
		Port:          defaultNodePort,
		Registry:      reg,
		Finalizer:     n.finalizer.Finalizer,
		Storage:       n.storage,
		Network:       "local",
		Version:       internal.Version,
		CurveType:     curves.DefaultCurveType,
		EncryptionKey: scheme.PublicKey().Marshal(),
		Authority:     signer.Address(),
	}, false)
	if err := n.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start API: %w", err)
	}
	return nil
}

func (n *localNode) Stop() {
	if n.api != nil {
		n.api.Stop()
	}
	if n.finalizer != nil {
		n.finalizer.Stop()
	}
	if n.participation != nil {
		if err := n.participation.Close(); err != nil {
			log.Warnw("failed to close participation trees", "err", err)
		}
	}
	if n.storage != nil {
		n.storage.Close()
	}
	if n.dataDir != "" {
		if err := os.RemoveAll(n.dataDir); err != nil {
			log.Warnw("failed to remove data directory", "err", err)
		}
	}
}
