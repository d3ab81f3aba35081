// Package archiver mirrors published poll results into S3 compatible object
// storage, so results stay fetchable by third parties without hitting the
// node API.
package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/registry"
	"github.com/sealedvote/sealedvote-node/storage"
	"github.com/sealedvote/sealedvote-node/types"
)

// ResultsArchive is the JSON document exported for every published poll. It
// bundles the poll snapshot with the results and, when the node holds one,
// the authority attestation so the archive is independently verifiable.
type ResultsArchive struct {
	Poll        *types.Poll               `json:"poll"`
	Results     []*types.BigInt           `json:"results"`
	Attestation *types.ResultsAttestation `json:"attestation,omitempty"`
	ArchivedAt  time.Time                 `json:"archivedAt"`
}

// Archiver listens for published results on the registry event bus and
// exports each one as a public JSON object.
type Archiver struct {
	reg      *registry.Registry
	stg      *storage.Storage
	uploader *s3Uploader
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// New creates an archiver over the given registry and storage. The S3
// configuration must be enabled and carry credentials.
func New(reg *registry.Registry, stg *storage.Storage, cfg *S3Config) (*Archiver, error) {
	uploader, err := newS3Uploader(cfg)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, fmt.Errorf("missing poll registry")
	}
	if stg == nil {
		return nil, fmt.Errorf("missing storage")
	}
	return &Archiver{
		reg:      reg,
		stg:      stg,
		uploader: uploader,
	}, nil
}

// Start verifies the S3 connection and launches the event loop. It returns
// an error if the bucket is not reachable.
func (a *Archiver) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	if err := a.uploader.checkConnection(ctx); err != nil {
		return err
	}
	log.Infow("results archiver started",
		"host", a.uploader.config.HostBase,
		"space", a.uploader.config.Space,
		"bucket", a.uploader.config.Bucket)

	events := a.reg.Subscribe()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if ev.Type != registry.EventResultsPublished {
					continue
				}
				key, err := a.ArchivePoll(ctx, ev.PollID)
				if err != nil {
					log.Warnw("failed to archive poll results",
						"pollId", ev.PollID.String(), "error", err.Error())
					continue
				}
				log.Infow("poll results archived", "pollId", ev.PollID.String(), "object", key)
			}
		}
	}()
	return nil
}

// Stop terminates the event loop and waits for any in-flight upload.
func (a *Archiver) Stop() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.wg.Wait()
}

// ArchivePoll builds and uploads the archive document of a published poll,
// returning the object key. It can be called directly to re-export a poll.
func (a *Archiver) ArchivePoll(ctx context.Context, pollID types.PollID) (string, error) {
	poll, err := a.reg.Poll(pollID)
	if err != nil {
		return "", err
	}
	if !poll.ResultsPublished {
		return "", fmt.Errorf("poll %s results are not published", pollID.String())
	}

	var att *types.ResultsAttestation
	if a.stg.HasAttestation(pollID) {
		if stored, err := a.stg.Attestation(pollID); err == nil {
			att = stored
		}
	}

	body, err := json.MarshalIndent(buildArchive(poll, att, time.Now()), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal archive document: %w", err)
	}
	key := objectKey(a.uploader.config.Bucket, pollID)
	if err := a.uploader.upload(ctx, key, body); err != nil {
		return "", err
	}
	return key, nil
}

// buildArchive assembles the export document for a published poll.
func buildArchive(poll *types.Poll, att *types.ResultsAttestation, now time.Time) *ResultsArchive {
	return &ResultsArchive{
		Poll:        poll,
		Results:     poll.Results,
		Attestation: att,
		ArchivedAt:  now.UTC(),
	}
}

// objectKey returns the bucket scoped object name of a poll archive.
func objectKey(bucket string, pollID types.PollID) string {
	return fmt.Sprintf("%s/poll-%s-results.json", bucket, pollID.String())
}
