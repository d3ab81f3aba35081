// Package participation maintains one append-only Merkle tree of voter
// addresses per poll. The key-value voted markers in storage remain the
// authoritative double-vote guard; these trees add an auditable commitment
// to each poll's participation set and hand out inclusion proofs that serve
// as voting receipts.
//
// Trees are lean incremental Merkle trees over Poseidon, persisted in
// per-poll pebble directories named by a UUID derived deterministically from
// the poll id.
package participation

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	leanimt "github.com/vocdoni/lean-imt-go"
	"github.com/vocdoni/lean-imt-go/census"

	"github.com/sealedvote/sealedvote-node/log"
	"github.com/sealedvote/sealedvote-node/types"
)

// treeDirPrefix prefixes the per-poll tree directories inside the data dir.
const treeDirPrefix = "pt_"

// participationHasher is the hash function used for participation trees.
var participationHasher = leanimt.PoseidonHasher

// Receipt is a self-contained inclusion proof of a voter address in a poll's
// participation tree. It verifies against the root it carries, so it stays
// valid even after the tree grows.
type Receipt struct {
	PollID   types.PollID   `json:"pollId"`
	Root     types.HexBytes `json:"root"`
	Address  types.HexBytes `json:"address"`
	Value    types.HexBytes `json:"value"`
	Siblings types.HexBytes `json:"siblings"`
	Index    uint64         `json:"index"`
}

// ParticipationDB manages the per-poll participation trees under a data
// directory. Safe for concurrent use.
type ParticipationDB struct {
	mu      sync.Mutex
	dataDir string
	trees   map[types.PollID]*census.CensusIMT
}

// New creates a ParticipationDB rooted at dataDir. Trees are opened lazily
// and persist across restarts.
func New(dataDir string) (*ParticipationDB, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("could not create participation data dir: %w", err)
	}
	return &ParticipationDB{
		dataDir: dataDir,
		trees:   make(map[types.PollID]*census.CensusIMT),
	}, nil
}

// Add inserts a voter address into the poll's participation tree with
// weight 1.
func (p *ParticipationDB) Add(pollID types.PollID, voter common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.tree(pollID)
	if err != nil {
		return err
	}
	if err := tree.Add(voter, big.NewInt(1)); err != nil {
		return fmt.Errorf("could not add voter to participation tree %s: %w", pollID, err)
	}
	return nil
}

// Rebuild bulk-inserts voters into the poll's tree. It is used to
// reconstruct a lost tree from the authoritative voted markers; the rebuilt
// root depends on insertion order, but receipts are self-contained and stay
// verifiable regardless.
func (p *ParticipationDB) Rebuild(pollID types.PollID, voters []common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.tree(pollID)
	if err != nil {
		return err
	}
	if tree.Size() > 0 {
		return fmt.Errorf("participation tree %s is not empty", pollID)
	}
	weights := make([]*big.Int, len(voters))
	for i := range weights {
		weights[i] = big.NewInt(1)
	}
	if err := tree.AddBulk(voters, weights); err != nil {
		return fmt.Errorf("could not rebuild participation tree %s: %w", pollID, err)
	}
	log.Infow("rebuilt participation tree", "pollId", pollID.String(), "voters", len(voters))
	return nil
}

// Root returns the current root of the poll's participation tree, or nil if
// the tree is still empty.
func (p *ParticipationDB) Root(pollID types.PollID) (types.HexBytes, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.tree(pollID)
	if err != nil {
		return nil, err
	}
	root, exists := tree.Root()
	if !exists {
		return nil, nil
	}
	return root.Bytes(), nil
}

// Size returns the number of voters in the poll's participation tree.
func (p *ParticipationDB) Size(pollID types.PollID) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.tree(pollID)
	if err != nil {
		return 0, err
	}
	return tree.Size(), nil
}

// GenProof generates a voting receipt for the given voter in the given poll.
func (p *ParticipationDB) GenProof(pollID types.PollID, voter common.Address) (*Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.tree(pollID)
	if err != nil {
		return nil, err
	}
	proof, err := tree.GenerateProof(voter)
	if err != nil {
		return nil, fmt.Errorf("could not generate participation proof: %w", err)
	}

	// leaf value packs address and weight: (address << 88) | weight
	packedValue := new(big.Int).Lsh(new(big.Int).SetBytes(proof.Address.Bytes()), 88)
	packedValue.Or(packedValue, proof.Weight)

	return &Receipt{
		PollID:   pollID,
		Root:     proof.Root.Bytes(),
		Address:  voter.Bytes(),
		Value:    packedValue.Bytes(),
		Siblings: packSiblings(proof.Siblings),
		Index:    proof.PathBits,
	}, nil
}

// VerifyReceipt checks a voting receipt against the root it carries. It is
// stateless: no tree access is needed.
func VerifyReceipt(receipt *Receipt) bool {
	if receipt == nil {
		return false
	}
	// the packed leaf must commit to the claimed address with weight 1
	addr := common.BytesToAddress(receipt.Address)
	packedValue := new(big.Int).Lsh(addr.Big(), 88)
	packedValue.Or(packedValue, big.NewInt(1))
	if packedValue.Cmp(new(big.Int).SetBytes(receipt.Value)) != 0 {
		return false
	}

	merkleProof := leanimt.MerkleProof[*big.Int]{
		Root:     new(big.Int).SetBytes(receipt.Root),
		Leaf:     new(big.Int).SetBytes(receipt.Value),
		PathBits: receipt.Index,
		Siblings: unpackSiblings(receipt.Siblings),
	}
	return leanimt.VerifyProofWith(merkleProof, participationHasher, leanimt.BigIntEqual)
}

// Close closes all open trees.
func (p *ParticipationDB) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for id, tree := range p.trees {
		if err := tree.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not close participation tree %s: %w", id, err)
		}
		delete(p.trees, id)
	}
	return firstErr
}

// tree returns the open tree for pollID, opening or creating it if needed.
// Callers must hold p.mu.
func (p *ParticipationDB) tree(pollID types.PollID) (*census.CensusIMT, error) {
	if tree, ok := p.trees[pollID]; ok {
		return tree, nil
	}
	tree, err := census.NewCensusIMTWithPebble(p.treePath(pollID), participationHasher)
	if err != nil {
		return nil, fmt.Errorf("could not open participation tree %s: %w", pollID, err)
	}
	p.trees[pollID] = tree
	return tree, nil
}

// treePath returns the pebble directory for a poll's tree, named by a
// deterministic UUID so the same poll always maps to the same directory.
func (p *ParticipationDB) treePath(pollID types.PollID) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, pollID.Bytes())
	return filepath.Join(p.dataDir, fmt.Sprintf("%s%x", treeDirPrefix, id[:]))
}

// packSiblings packs sibling hashes into a byte array, each encoded as 32
// bytes big-endian.
func packSiblings(siblings []*big.Int) []byte {
	if len(siblings) == 0 {
		return []byte{}
	}
	packed := make([]byte, 0, len(siblings)*32)
	for _, s := range siblings {
		siblingBytes := make([]byte, 32)
		s.FillBytes(siblingBytes)
		packed = append(packed, siblingBytes...)
	}
	return packed
}

// unpackSiblings unpacks a byte array into sibling hashes, each expected as
// 32 bytes big-endian.
func unpackSiblings(packed []byte) []*big.Int {
	if len(packed) == 0 {
		return []*big.Int{}
	}
	numSiblings := len(packed) / 32
	siblings := make([]*big.Int, numSiblings)
	for i := range numSiblings {
		siblings[i] = new(big.Int).SetBytes(packed[i*32 : (i+1)*32])
	}
	return siblings
}
