// Package authority implements the decryption authority: the holder of the
// tally decryption key. Given the publicly decryptable tally handles of a
// closed poll it opens them with bounded baby-step giant-step decryption and
// signs a ResultsAttestation binding the clear counts to the handles. The
// registry accepts published results only against such an attestation (unless
// running the local profile with proof checking disabled).
package authority

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"github.com/sealedvote/sealedvote-node/crypto/ecc"
	"github.com/sealedvote/sealedvote-node/crypto/elgamal"
	"github.com/sealedvote/sealedvote-node/crypto/signatures/ethereum"
	"github.com/sealedvote/sealedvote-node/fhe"
	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/types"
)

// CiphertextSource is the authority's view of the encryption scheme:
// ciphertexts released for public decryption plus the key material needed to
// open them. The embedded local profile passes the scheme itself; a
// standalone authority implements it over its own key store.
type CiphertextSource interface {
	DecryptableCiphertext(h fhe.Handle) (*elgamal.Ciphertext, error)
	KeyPair() (ecc.Point, *big.Int)
	MaxMessage() uint64
}

// Config holds the authority options.
type Config struct {
	// AttachProofs adds a Chaum-Pedersen decryption proof per option to
	// every attestation, so verifiers do not have to take the clear counts
	// on signature trust alone.
	AttachProofs bool
}

// Authority decrypts released tally handles and attests the results.
type Authority struct {
	source       CiphertextSource
	signer       *ethereum.Signer
	attachProofs bool
}

// New creates an Authority over the given ciphertext source, signing
// attestations with the given signer.
func New(source CiphertextSource, signer *ethereum.Signer, cfg Config) (*Authority, error) {
	if source == nil {
		return nil, fmt.Errorf("nil ciphertext source")
	}
	if signer == nil {
		return nil, fmt.Errorf("nil attestation signer")
	}
	return &Authority{
		source:       source,
		signer:       signer,
		attachProofs: cfg.AttachProofs,
	}, nil
}

// Address returns the address attestation signatures verify against. Nodes
// must configure this address as the trusted authority.
func (a *Authority) Address() common.Address {
	return a.signer.Address()
}

// Attest opens every tally handle of the poll concurrently and returns a
// signed attestation carrying the clear per-option counts in handle order.
// It fails if any handle has not been released for public decryption.
func (a *Authority) Attest(ctx context.Context, pollID types.PollID, handles []fhe.Handle) (*types.ResultsAttestation, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("no tally handles for poll %s", pollID.String())
	}
	att := &types.ResultsAttestation{
		PollID:  pollID,
		Tallies: make([]types.HexBytes, len(handles)),
		Results: make([]*types.BigInt, len(handles)),
	}
	if a.attachProofs {
		att.DecryptionProofs = make([]types.HexBytes, len(handles))
	}

	pub, priv := a.source.KeyPair()
	g, ctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ct, err := a.source.DecryptableCiphertext(h)
			if err != nil {
				return fmt.Errorf("option %d: %w", i, err)
			}
			_, msg, err := elgamal.Decrypt(pub, priv, ct.C1, ct.C2, a.source.MaxMessage())
			if err != nil {
				return fmt.Errorf("decrypt option %d: %w", i, err)
			}
			att.Tallies[i] = types.HexBytes(h)
			att.Results[i] = new(types.BigInt).SetBigInt(msg)
			if a.attachProofs {
				proof, err := elgamal.BuildDecryptionProof(priv, pub, ct.C1, ct.C2, msg)
				if err != nil {
					return fmt.Errorf("decryption proof for option %d: %w", i, err)
				}
				att.DecryptionProofs[i] = proof.Serialize()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sig, err := a.signer.Sign(att.SignableBytes())
	if err != nil {
		return nil, fmt.Errorf("sign attestation: %w", err)
	}
	att.Signature = sig.Bytes()

	log.Debugw("attested poll results",
		"poll", pollID.String(),
		"options", len(handles),
		"authority", a.signer.Address().Hex())
	return att, nil
}

// DecryptTallies opens the handles and returns only the clear counts, without
// building an attestation. Used by tooling that inspects results locally.
func (a *Authority) DecryptTallies(ctx context.Context, handles []fhe.Handle) ([]uint64, error) {
	results := make([]uint64, len(handles))
	pub, priv := a.source.KeyPair()
	g, ctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ct, err := a.source.DecryptableCiphertext(h)
			if err != nil {
				return fmt.Errorf("option %d: %w", i, err)
			}
			_, msg, err := elgamal.Decrypt(pub, priv, ct.C1, ct.C2, a.source.MaxMessage())
			if err != nil {
				return fmt.Errorf("decrypt option %d: %w", i, err)
			}
			results[i] = msg.Uint64()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ClearResults extracts the attested counts as plain integers, in option
// order.
func ClearResults(att *types.ResultsAttestation) ([]uint64, error) {
	if att == nil {
		return nil, fmt.Errorf("nil attestation")
	}
	out := make([]uint64, len(att.Results))
	for i, r := range att.Results {
		if r == nil {
			return nil, fmt.Errorf("attestation result %d is nil", i)
		}
		if !r.MathBigInt().IsUint64() {
			return nil, fmt.Errorf("attestation result %d out of range", i)
		}
		out[i] = r.MathBigInt().Uint64()
	}
	return out, nil
}

// EncodeProof serializes an attestation into the proof blob that
// Scheme.VerifySignedCleartext consumes.
func EncodeProof(att *types.ResultsAttestation) ([]byte, error) {
	data, err := cbor.Marshal(att)
	if err != nil {
		return nil, fmt.Errorf("encode attestation: %w", err)
	}
	return data, nil
}
