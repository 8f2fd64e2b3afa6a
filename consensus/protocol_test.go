package consensus

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/luca-patrignani/flow-lottery/domain/lottery"
	"github.com/luca-patrignani/flow-lottery/network"
)

func makeSignedVote(t *testing.T, actionID string, voterID int, value VoteValue, reason string, priv ed25519.PrivateKey) Vote {
	t.Helper()
	v := Vote{ActionId: actionID,
		VoterID: voterID,
		Value:   value,
		Reason:  reason}
	_ = v.Sign(priv)
	return v
}

func TestEnsureSameProposal(t *testing.T) {
	v1 := Vote{ActionId: "p1"}
	v2 := Vote{ActionId: "p1"}
	v3 := Vote{ActionId: "p2"}

	err := ensureSameProposal([]Vote{})
	if err == nil {
		t.Fatalf("expected error for empty slice")
	}

	err = ensureSameProposal([]Vote{v1, v2})
	if err != nil {
		t.Fatalf("expected success for matching proposals, got %v", err)
	}

	err = ensureSameProposal([]Vote{v1, v3})
	if err == nil {
		t.Fatalf("expected error for mismatched proposals")
	}
}

func TestCollectVotesSortedByVoter(t *testing.T) {
	m := map[int]Vote{
		12: {VoterID: 12, Value: VoteReject},
		1:  {VoterID: 1, Value: VoteAccept},
		13: {VoterID: 13, Value: VoteAccept},
	}
	accepts := collectVotes(m, VoteAccept)
	if len(accepts) != 2 {
		t.Fatalf("expected 2 accepts, got %d", len(accepts))
	}
	rejects := collectVotes(m, VoteReject)
	if len(rejects) != 1 {
		t.Fatalf("expected 1 reject, got %d", len(rejects))
	}
	all := collectVotes(m, "both")
	for i, id := range []int{1, 12, 13} {
		if all[i].VoterID != id {
			t.Fatalf("expected voter %d at %d, got %d", id, i, all[i].VoterID)
		}
	}
}

func TestGetRejectReasonDeduplicates(t *testing.T) {
	reason := getRejectReason([]Vote{{Reason: "a"}, {Reason: "b"}, {Reason: "a"}})
	if reason != "a; b" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestComputeQuorum(t *testing.T) {
	for n, q := range map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 7: 5, 10: 7} {
		if got := computeQuorum(n); got != q {
			t.Fatalf("quorum of %d: expected %d, got %d", n, q, got)
		}
	}
}

func TestOnReceiveVotesDropsForgedVotes(t *testing.T) {
	pub0, priv0, _ := ed25519.GenerateKey(nil)
	pub1, _, _ := ed25519.GenerateKey(nil)
	_, mallory, _ := ed25519.GenerateKey(nil)
	peers := network.NewLocalCluster(1, time.Second)
	node := NewConsensusNode(pub0, priv0, map[int]ed25519.PublicKey{0: pub0, 1: pub1}, nil, nil, peers[0])
	node.proposal = &Action{Id: "p"}
	node.votes = map[int]Vote{}

	node.onReceiveVotes([]Vote{
		makeSignedVote(t, "p", 0, VoteAccept, "valid", priv0),
		makeSignedVote(t, "p", 1, VoteAccept, "valid", mallory),
		makeSignedVote(t, "p", 2, VoteAccept, "valid", mallory),
		makeSignedVote(t, "q", 0, VoteAccept, "valid", priv0),
	})
	if len(node.votes) != 1 {
		t.Fatalf("expected only the genuine vote to be kept, got %v", node.votes)
	}
}

func TestDrawSeedDependsOnVotes(t *testing.T) {
	_, priv1, _ := ed25519.GenerateKey(nil)
	_, priv2, _ := ed25519.GenerateKey(nil)
	_, other, _ := ed25519.GenerateKey(nil)
	votes := []Vote{
		makeSignedVote(t, "a1", 0, VoteAccept, "", priv1),
		makeSignedVote(t, "a1", 1, VoteAccept, "", priv2),
	}
	seed := drawSeed("head", "a1", votes)
	if !bytes.Equal(seed, drawSeed("head", "a1", votes)) {
		t.Fatal("the same votes must give the same seed")
	}

	// the proposer alone cannot reproduce the signature of voter 1
	forged := []Vote{votes[0], makeSignedVote(t, "a1", 1, VoteAccept, "", other)}
	if bytes.Equal(seed, drawSeed("head", "a1", forged)) {
		t.Fatal("the seed should depend on the accepting signatures")
	}
	if bytes.Equal(seed, drawSeed("head", "a1", votes[:1])) {
		t.Fatal("the seed should depend on every accepting vote")
	}
	if bytes.Equal(seed, drawSeed("other", "a1", votes)) {
		t.Fatal("the seed should depend on the ledger head")
	}
	rejected := append(votes, makeSignedVote(t, "a1", 2, VoteReject, "late", other))
	if !bytes.Equal(seed, drawSeed("head", "a1", rejected)) {
		t.Fatal("reject votes should not change the seed")
	}
}

type brokenLedger struct{}

func (brokenLedger) Append(lottery.Action, lottery.Outcome, lottery.PoolState, []Vote, int, int, ...map[string]string) error {
	return errors.New("disk full")
}

func (brokenLedger) LatestHash() string { return "head" }

func (brokenLedger) Verify() error { return nil }

// TestApplyCommitRollsBackWhenLedgerFails checks that a pool never keeps an
// action its ledger did not record.
func TestApplyCommitRollsBackWhenLedgerFails(t *testing.T) {
	pool := lottery.NewPool(lottery.Config{EmissionRate: lottery.NewAmount(1)})
	if err := pool.Restore(lottery.PoolState{LastHarvestTimestamp: 1_700_000_000}); err != nil {
		t.Fatal(err)
	}
	manager := lottery.NewLotteryManager(pool, "bob", lottery.NewAmount(1))
	before := manager.Snapshot()
	node := &ConsensusNode{
		lotterySM: manager,
		ledger:    brokenLedger{},
		logger:    slog.Default(),
		quorum:    1,
		proposal: &Action{Id: "a1", Payload: lottery.Action{
			Type: lottery.ActionEnter, PlayerID: "bob", FlowRate: lottery.NewAmount(1), Timestamp: 1_700_000_001,
		}},
	}
	if _, err := node.applyCommit(0, []Vote{{ActionId: "a1", Value: VoteAccept}}); err == nil {
		t.Fatal("expected the ledger failure to be reported")
	}
	after := manager.Snapshot()
	if len(after.ActivePlayers) != 0 || after.CurrentWinner != nil || after.LastActionTimestamp != before.LastActionTimestamp {
		t.Fatalf("pool kept the unrecorded action: %+v", after)
	}
}
