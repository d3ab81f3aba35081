// Package finalizer drives polls through the tail of their lifecycle. A
// monitor goroutine periodically scans for polls whose voting window is over
// and pushes them through finalize, attestation and publish; the same
// pipeline can be triggered for a single poll through the on-demand channel.
package finalizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sealedvote/sealedvote-node/authority"
	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/registry"
	"github.com/sealedvote/sealedvote-node/storage"
	"github.com/sealedvote/sealedvote-node/types"
)

const (
	ondemandBufferSize = 10
	waitPollInterval   = 250 * time.Millisecond
	defaultWaitTimeout = 60 * time.Second
)

// Finalizer closes out ended polls: finalize the tallies, obtain the
// authority attestation, publish the clear results.
type Finalizer struct {
	reg        *registry.Registry
	auth       *authority.Authority
	stg        *storage.Storage
	OndemandCh chan types.PollID
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a Finalizer. Start must be called before polls are processed.
func New(reg *registry.Registry, auth *authority.Authority, stg *storage.Storage) *Finalizer {
	return &Finalizer{
		reg:        reg,
		auth:       auth,
		stg:        stg,
		OndemandCh: make(chan types.PollID, ondemandBufferSize),
	}
}

// Start launches the worker listening on OndemandCh and, when
// monitorInterval is positive, the monitor that scans for ended polls.
func (f *Finalizer) Start(ctx context.Context, monitorInterval time.Duration) {
	f.ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case id := <-f.OndemandCh:
				if err := f.publishPoll(id); err != nil {
					log.Errorw(err, fmt.Sprintf("finalizing poll %s", id.String()))
				}
			case <-f.ctx.Done():
				return
			}
		}
	}()

	if monitorInterval > 0 {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			ticker := time.NewTicker(monitorInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					f.enqueueEndedPolls(f.reg.Now())
				case <-f.ctx.Done():
					return
				}
			}
		}()
	}

	log.Infow("finalizer started", "monitorInterval", monitorInterval.String())
}

// Close stops the workers and waits for them to exit. Call it before closing
// storage.
func (f *Finalizer) Close() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	f.cancel = nil

	// discard whatever is still queued so no sender stays blocked
	drained := make(chan struct{})
	go func() {
		for {
			select {
			case <-f.OndemandCh:
			case <-time.After(100 * time.Millisecond):
				close(drained)
				return
			}
		}
	}()
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		log.Warnw("timeout draining finalizer queue")
	}

	waitCh := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		log.Infow("finalizer closed")
	case <-time.After(5 * time.Second):
		log.Warnw("some finalizer goroutines did not exit cleanly")
	}
}

// enqueueEndedPolls pushes every poll whose window is over and whose results
// are not yet published onto the on-demand channel.
func (f *Finalizer) enqueueEndedPolls(now time.Time) {
	polls, err := f.reg.ListPolls()
	if err != nil {
		log.Errorw(err, "could not list polls")
		return
	}
	for _, poll := range polls {
		if poll.ResultsPublished || !poll.Ended(now) {
			continue
		}
		log.Debugw("found ended poll to publish", "poll", poll.ID.String())
		select {
		case f.OndemandCh <- poll.ID:
		case <-f.ctx.Done():
			return
		}
	}
}

// publishPoll runs the full closing pipeline for one poll. Every stage is
// idempotent so a poll may be enqueued more than once; a failure leaves the
// poll to be retried on a later tick.
func (f *Finalizer) publishPoll(id types.PollID) error {
	poll, err := f.reg.Poll(id)
	if err != nil {
		return err
	}
	if poll.ResultsPublished {
		return nil
	}

	if !poll.Finalized {
		if err := f.reg.FinalizePoll(id); err != nil && !errors.Is(err, registry.ErrPollAlreadyFinalized) {
			return fmt.Errorf("finalize poll %s: %w", id.String(), err)
		}
	}

	att, err := f.attestation(id, poll.Tallies)
	if err != nil {
		return fmt.Errorf("attest poll %s: %w", id.String(), err)
	}
	results, err := authority.ClearResults(att)
	if err != nil {
		return fmt.Errorf("attestation for poll %s: %w", id.String(), err)
	}
	proof, err := authority.EncodeProof(att)
	if err != nil {
		return err
	}

	if err := f.reg.PublishResults(id, results, proof); err != nil {
		if errors.Is(err, registry.ErrPollAlreadyPublished) {
			return nil
		}
		return fmt.Errorf("publish poll %s: %w", id.String(), err)
	}
	log.Infow("published poll results", "poll", id.String(), "results", results)
	return nil
}

// attestation returns the stored attestation for the poll or requests a
// fresh one from the authority and stores it. Reuse keeps a crash between
// attest and publish from triggering a second decryption run.
func (f *Finalizer) attestation(id types.PollID, tallies []types.HexBytes) (*types.ResultsAttestation, error) {
	if f.stg.HasAttestation(id) {
		return f.stg.Attestation(id)
	}
	att, err := f.auth.Attest(f.ctx, id, tallies)
	if err != nil {
		return nil, err
	}
	if err := f.stg.SetAttestation(att); err != nil {
		log.Warnw("could not store attestation", "poll", id.String(), "error", err.Error())
	}
	return att, nil
}

// WaitUntilPublished blocks until the poll's results are published and
// returns them. A default timeout applies when the context has no deadline.
func (f *Finalizer) WaitUntilPublished(ctx context.Context, id types.PollID) ([]*types.BigInt, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultWaitTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	log.Debugw("waiting for poll results", "poll", id.String())
	for {
		select {
		case <-ticker.C:
			poll, err := f.reg.Poll(id)
			if err != nil {
				return nil, err
			}
			if poll.ResultsPublished {
				return poll.Results, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for poll %s results: %w", id.String(), ctx.Err())
		case <-f.ctx.Done():
			return nil, fmt.Errorf("finalizer is shutting down")
		}
	}
}
