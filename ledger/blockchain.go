package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/luca-patrignani/flow-lottery/consensus"
	"github.com/luca-patrignani/flow-lottery/domain/lottery"
)

var (
	ErrEmptyChain = errors.New("blockchain is empty")
	ErrNotFound   = errors.New("block not found")
)

// Blockchain is an append-only, hash-chained log of committed actions. When
// it is backed by a Store every block is persisted before it becomes
// visible.
type Blockchain struct {
	mu     sync.RWMutex
	blocks []Block
	store  *Store
}

// NewBlockchain creates an in-memory blockchain whose genesis block carries
// the initial pool state. The genesis timestamp is the state's harvest
// timestamp so that every replica starting from the same state computes the
// same genesis hash.
func NewBlockchain(genesis lottery.PoolState) *Blockchain {
	bc := &Blockchain{}
	bc.blocks = append(bc.blocks, newGenesis(genesis))
	return bc
}

// OpenBlockchain loads the chain persisted in store and verifies it. An
// empty store is initialized with a genesis block built from genesis.
func OpenBlockchain(ctx context.Context, store *Store, genesis lottery.PoolState) (*Blockchain, error) {
	blocks, err := store.Blocks(ctx)
	if err != nil {
		return nil, err
	}
	bc := &Blockchain{blocks: blocks, store: store}
	if len(blocks) == 0 {
		g := newGenesis(genesis)
		if err := store.Put(ctx, g); err != nil {
			return nil, fmt.Errorf("persist genesis block: %w", err)
		}
		bc.blocks = []Block{g}
		return bc, nil
	}
	if err := bc.Verify(); err != nil {
		return nil, fmt.Errorf("stored chain: %w", err)
	}
	return bc, nil
}

func newGenesis(state lottery.PoolState) Block {
	genesis := Block{
		Index:     0,
		Timestamp: state.LastHarvestTimestamp,
		PrevHash:  "0",
		Action:    lottery.Action{Type: GenesisAction, Timestamp: state.LastHarvestTimestamp},
		State:     state,
		Votes:     []consensus.Vote{},
		Metadata:  Metadata{ProposerID: -1, Quorum: 0},
	}
	genesis.Hash = calculateHash(genesis)
	return genesis
}

// Append adds a new block for a committed action. The block timestamp is
// the action's own timestamp, and the caller is expected to pass the votes
// in a deterministic order, so that replicas build identical blocks.
// The optional extra map is stored in the block metadata.
func (bc *Blockchain) Append(action lottery.Action, outcome lottery.Outcome, state lottery.PoolState, votes []consensus.Vote, proposerID int, quorum int, extra ...map[string]string) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if len(bc.blocks) == 0 {
		return ErrEmptyChain
	}
	var extraMsg map[string]string
	// an empty map would not survive the JSON round trip through the store
	if len(extra) > 0 && len(extra[0]) > 0 {
		extraMsg = extra[0]
	}
	latest := bc.blocks[len(bc.blocks)-1]

	newBlock := Block{
		Index:     latest.Index + 1,
		Timestamp: action.Timestamp,
		PrevHash:  latest.Hash,
		Action:    action,
		Outcome:   outcome,
		State:     state,
		Votes:     votes,
		Metadata: Metadata{
			ProposerID: proposerID,
			Quorum:     quorum,
			Extra:      extraMsg,
		},
	}
	newBlock.Hash = calculateHash(newBlock)

	if err := validateBlock(newBlock, latest); err != nil {
		return fmt.Errorf("invalid block: %w", err)
	}
	if bc.store != nil {
		if err := bc.store.Put(context.Background(), newBlock); err != nil {
			return fmt.Errorf("persist block %d: %w", newBlock.Index, err)
		}
	}
	bc.blocks = append(bc.blocks, newBlock)
	return nil
}

// GetLatest returns the most recently added block.
func (bc *Blockchain) GetLatest() (Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	if len(bc.blocks) == 0 {
		return Block{}, ErrEmptyChain
	}
	return bc.blocks[len(bc.blocks)-1], nil
}

// GetByIndex retrieves a block by its position in the chain.
func (bc *Blockchain) GetByIndex(index int) (Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	if index < 0 || index >= len(bc.blocks) {
		return Block{}, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	return bc.blocks[index], nil
}

// LatestHash is the hash of the last block, or "" for an empty chain.
func (bc *Blockchain) LatestHash() string {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	if len(bc.blocks) == 0 {
		return ""
	}
	return bc.blocks[len(bc.blocks)-1].Hash
}

func (bc *Blockchain) Len() int {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return len(bc.blocks)
}

// Verify validates the whole chain: the genesis block, then each block's
// index, hash linkage, own hash and quorum.
func (bc *Blockchain) Verify() error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	if len(bc.blocks) == 0 {
		return ErrEmptyChain
	}
	genesis := bc.blocks[0]
	if genesis.Index != 0 || genesis.PrevHash != "0" || genesis.Action.Type != GenesisAction {
		return errors.New("invalid genesis block")
	}
	if genesis.Hash != calculateHash(genesis) {
		return errors.New("invalid genesis hash")
	}

	for i := 1; i < len(bc.blocks); i++ {
		if err := validateBlock(bc.blocks[i], bc.blocks[i-1]); err != nil {
			return fmt.Errorf("block %d invalid: %w", i, err)
		}
	}
	return nil
}

// validateBlock checks current against the block before it.
func validateBlock(current, previous Block) error {
	if current.Index != previous.Index+1 {
		return fmt.Errorf("invalid index: expected %d, got %d", previous.Index+1, current.Index)
	}
	if current.PrevHash != previous.Hash {
		return fmt.Errorf("invalid prev hash: expected %s, got %s", previous.Hash, current.PrevHash)
	}
	expectedHash := calculateHash(current)
	if current.Hash != expectedHash {
		return fmt.Errorf("invalid hash: expected %s, got %s", expectedHash, current.Hash)
	}
	if len(current.Votes) < current.Metadata.Quorum {
		return fmt.Errorf("insufficient votes: got %d, need %d", len(current.Votes), current.Metadata.Quorum)
	}
	if err := current.State.Validate(); err != nil {
		return fmt.Errorf("invalid pool state: %w", err)
	}
	return nil
}

// calculateHash computes the SHA256 of every block field except the hash
// itself. Structured fields are JSON encoded first.
func calculateHash(block Block) string {
	actionBytes, _ := json.Marshal(block.Action)
	outcomeBytes, _ := json.Marshal(block.Outcome)
	stateBytes, _ := json.Marshal(block.State)
	votesBytes, _ := json.Marshal(block.Votes)
	extraBytes, _ := json.Marshal(block.Metadata.Extra)

	data := fmt.Sprintf("%d%d%s%s%s%s%s%d%d%s",
		block.Index,
		block.Timestamp,
		block.PrevHash,
		actionBytes,
		outcomeBytes,
		stateBytes,
		votesBytes,
		block.Metadata.ProposerID,
		block.Metadata.Quorum,
		extraBytes,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
