package ledger

import (
	"testing"
	"time"

	"github.com/luca-patrignani/flow-lottery/consensus"
	"github.com/luca-patrignani/flow-lottery/domain/lottery"
)

const t0 int64 = 1_700_000_000

func genesisState() lottery.PoolState {
	return lottery.PoolState{LastHarvestTimestamp: t0}
}

// commit applies a to pool and returns what a replica would append.
func commit(t *testing.T, pool *lottery.Pool, a lottery.Action) (lottery.Outcome, lottery.PoolState) {
	t.Helper()
	out, err := pool.Apply(a, a.Time(), lottery.NewSeededSource([]byte(a.PlayerID)))
	if err != nil {
		t.Fatalf("apply %s: %v", a.Type, err)
	}
	return out, pool.Snapshot()
}

func newPool(t *testing.T) *lottery.Pool {
	t.Helper()
	pool := lottery.NewPool(lottery.Config{EmissionRate: lottery.NewAmount(2), TriggerFee: lottery.NewAmount(1)})
	if err := pool.Restore(genesisState()); err != nil {
		t.Fatalf("restore genesis: %v", err)
	}
	return pool
}

func acceptVotes(n int) []consensus.Vote {
	votes := make([]consensus.Vote, n)
	for i := range votes {
		votes[i] = consensus.Vote{ActionId: "a", VoterID: i, Value: consensus.VoteAccept, Reason: "valid"}
	}
	return votes
}

// buildChain appends a join by bob and carol and a trigger by bob.
func buildChain(t *testing.T, bc *Blockchain) {
	t.Helper()
	pool := newPool(t)
	actions := []lottery.Action{
		{Type: lottery.ActionEnter, PlayerID: "bob", FlowRate: lottery.NewAmount(3), Timestamp: t0 + 1},
		{Type: lottery.ActionEnter, PlayerID: "carol", FlowRate: lottery.NewAmount(3), Timestamp: t0 + 2},
		{Type: lottery.ActionTrigger, PlayerID: "bob", Timestamp: t0 + 30},
	}
	for i, a := range actions {
		out, state := commit(t, pool, a)
		if err := bc.Append(a, out, state, acceptVotes(3), i%3, 3); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

// TestNewBlockchainGenesis verifies that a new blockchain starts with a genesis block
// that carries the initial pool state and is stamped with its harvest time.
func TestNewBlockchainGenesis(t *testing.T) {
	bc := NewBlockchain(genesisState())
	if bc.Len() != 1 {
		t.Fatalf("expected 1 block (genesis), got %d", bc.Len())
	}
	genesis, err := bc.GetLatest()
	if err != nil {
		t.Fatal(err)
	}
	if genesis.Index != 0 || genesis.PrevHash != "0" {
		t.Fatalf("unexpected genesis linkage: index %d prev %s", genesis.Index, genesis.PrevHash)
	}
	if genesis.Action.Type != GenesisAction {
		t.Fatalf("genesis action type should be %q, got %q", GenesisAction, genesis.Action.Type)
	}
	if genesis.Timestamp != t0 {
		t.Fatalf("genesis timestamp should be %d, got %d", t0, genesis.Timestamp)
	}
	if genesis.Hash == "" || genesis.Hash != bc.LatestHash() {
		t.Fatal("genesis block should have a hash")
	}
	if err := bc.Verify(); err != nil {
		t.Fatalf("fresh chain should verify: %v", err)
	}
}

// TestGenesisIsDeterministic verifies that replicas starting from the same state agree on
// the genesis hash, while different states produce different hashes.
func TestGenesisIsDeterministic(t *testing.T) {
	a := NewBlockchain(genesisState())
	b := NewBlockchain(genesisState())
	if a.LatestHash() != b.LatestHash() {
		t.Fatal("same genesis state should produce the same hash")
	}
	other := genesisState()
	other.LastHarvestTimestamp++
	if NewBlockchain(other).LatestHash() == a.LatestHash() {
		t.Fatal("different genesis states should produce different hashes")
	}
}

// TestAppendValidBlocks verifies that committed actions are chained and that identical
// inputs on two replicas produce identical chains.
func TestAppendValidBlocks(t *testing.T) {
	a := NewBlockchain(genesisState())
	b := NewBlockchain(genesisState())
	buildChain(t, a)
	buildChain(t, b)

	if a.Len() != 4 {
		t.Fatalf("expected 4 blocks, got %d", a.Len())
	}
	if a.LatestHash() != b.LatestHash() {
		t.Fatal("replicas appending the same decisions should agree on the head")
	}
	latest, err := a.GetLatest()
	if err != nil {
		t.Fatal(err)
	}
	if latest.Timestamp != t0+30 {
		t.Fatalf("block should carry the action timestamp, got %d", latest.Timestamp)
	}
	if latest.Outcome.Harvested != lottery.NewAmount(60) {
		t.Fatalf("expected 30s at rate 2 to be harvested, got %s", latest.Outcome.Harvested)
	}
	if len(latest.State.ActivePlayers) != 2 {
		t.Fatalf("expected 2 players in the recorded state, got %d", len(latest.State.ActivePlayers))
	}
	if err := a.Verify(); err != nil {
		t.Fatalf("chain should verify: %v", err)
	}
}

// TestAppendInsufficientVotes verifies that a block without a quorum of votes is refused.
func TestAppendInsufficientVotes(t *testing.T) {
	bc := NewBlockchain(genesisState())
	pool := newPool(t)
	a := lottery.Action{Type: lottery.ActionEnter, PlayerID: "bob", Timestamp: t0}
	out, state := commit(t, pool, a)
	if err := bc.Append(a, out, state, acceptVotes(2), 0, 3); err == nil {
		t.Fatal("expected insufficient votes to be rejected")
	}
	if bc.Len() != 1 {
		t.Fatalf("rejected block must not be appended, chain has %d blocks", bc.Len())
	}
}

// TestAppendInvalidState verifies that a block recording a pool state that breaks the
// pool invariants is refused.
func TestAppendInvalidState(t *testing.T) {
	bc := NewBlockchain(genesisState())
	bob := lottery.Player{ID: "bob", JoinedAt: time.Unix(t0, 0).UTC()}
	broken := lottery.PoolState{ActivePlayers: []lottery.Player{bob}}
	a := lottery.Action{Type: lottery.ActionEnter, PlayerID: "bob", Timestamp: t0}
	if err := bc.Append(a, lottery.Outcome{}, broken, nil, 0, 0); err == nil {
		t.Fatal("expected a state without winner to be rejected")
	}
}

// TestVerifyDetectsTampering verifies that changing any recorded field breaks the chain.
func TestVerifyDetectsTampering(t *testing.T) {
	tamperings := map[string]func(b *Block){
		"winner":  func(b *Block) { b.Outcome.Winner = "mallory" },
		"burned":  func(b *Block) { b.State.TotalBurned = lottery.NewAmount(999) },
		"action":  func(b *Block) { b.Action.PlayerID = "mallory" },
		"votes":   func(b *Block) { b.Votes = b.Votes[:1] },
		"link":    func(b *Block) { b.PrevHash = "0" },
		"index":   func(b *Block) { b.Index = 7 },
		"quorum":  func(b *Block) { b.Metadata.Quorum = 1 },
		"extra":   func(b *Block) { b.Metadata.Extra = map[string]string{"note": "x"} },
		"stamped": func(b *Block) { b.Timestamp++ },
	}
	for name, tamper := range tamperings {
		bc := NewBlockchain(genesisState())
		buildChain(t, bc)
		tamper(&bc.blocks[2])
		if err := bc.Verify(); err == nil {
			t.Fatalf("tampering with %s should be detected", name)
		}
	}
}

// TestGetByIndex verifies indexed access and the not-found error.
func TestGetByIndex(t *testing.T) {
	bc := NewBlockchain(genesisState())
	buildChain(t, bc)
	b, err := bc.GetByIndex(2)
	if err != nil {
		t.Fatal(err)
	}
	if b.Action.PlayerID != "carol" {
		t.Fatalf("expected carol's join at index 2, got %v", b.Action)
	}
	for _, i := range []int{-1, 4} {
		if _, err := bc.GetByIndex(i); err == nil {
			t.Fatalf("expected an error for index %d", i)
		}
	}
}
