package consensus

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/luca-patrignani/flow-lottery/domain/lottery"
)

// ProposeAction is called by the replica whose turn it is. A nil action
// passes the turn; otherwise the signed action is broadcast, voted on, and
// applied if a quorum accepts it.
func (node *ConsensusNode) ProposeAction(a *Action) (Decision, error) {
	rank := node.network.GetRank()
	if a == nil {
		if _, err := node.network.Broadcast(nil, rank); err != nil {
			return Decision{}, err
		}
		return Decision{Proposer: rank}, nil
	}
	if a.PlayerID != rank {
		return Decision{}, fmt.Errorf("cannot propose on behalf of %d", a.PlayerID)
	}

	b, err := json.Marshal(a)
	if err != nil {
		return Decision{}, err
	}
	if _, err := node.network.Broadcast(b, rank); err != nil {
		return Decision{}, err
	}
	return node.onReceiveProposal(rank, a)
}

// WaitForProposal receives the proposal of the replica with rank proposer
// and takes part in deciding it.
func (node *ConsensusNode) WaitForProposal(proposer int) (Decision, error) {
	data, err := node.network.Broadcast(nil, proposer)
	if err != nil {
		return Decision{}, err
	}
	if len(data) == 0 {
		return Decision{Proposer: proposer}, nil
	}
	var p Action
	if err := json.Unmarshal(data, &p); err != nil {
		node.logger.Warn("malformed proposal", "proposer", proposer, "error", err)
		// still vote, so that the round stays aligned with the other replicas
		p = Action{PlayerID: proposer}
	}
	return node.onReceiveProposal(proposer, &p)
}

// onReceiveProposal checks p and broadcasts this node's vote.
func (node *ConsensusNode) onReceiveProposal(proposer int, p *Action) (Decision, error) {
	node.proposal = p
	node.votes = map[int]Vote{}
	return node.broadcastVoteForProposal(proposer, p, node.judge(proposer, p))
}

// judge returns "" when p is acceptable, or the reason to reject it.
func (node *ConsensusNode) judge(proposer int, p *Action) string {
	if p.PlayerID != proposer {
		return "out-of-turn"
	}
	pub, found := node.playersPK[p.PlayerID]
	if !found {
		return "unknown-player"
	}
	if verified, _ := p.VerifySignature(pub); !verified {
		return "bad-signature"
	}
	if player, ok := node.players[p.PlayerID]; ok && player != p.Payload.PlayerID {
		return "impersonation"
	}
	if invalid := node.lotterySM.Validate(p.Payload); invalid != nil {
		return invalid.Error()
	}
	return ""
}

func (node *ConsensusNode) broadcastVoteForProposal(proposer int, p *Action, reason string) (Decision, error) {
	vote := Vote{
		ActionId: p.Id,
		VoterID:  node.network.GetRank(),
		Value:    VoteAccept,
		Reason:   "valid",
	}
	if reason != "" {
		vote.Value = VoteReject
		vote.Reason = reason
		node.logger.Debug("rejecting proposal", "proposer", proposer, "action", p.Payload.Type, "reason", reason)
	}
	if err := vote.Sign(node.priv); err != nil {
		return Decision{}, err
	}
	node.votes[vote.VoterID] = vote

	b, err := json.Marshal(vote)
	if err != nil {
		return Decision{}, err
	}
	votesBytes, err := node.network.AllToAll(b)
	if err != nil {
		return Decision{}, err
	}

	votes := make([]Vote, 0, len(votesBytes))
	for i, vb := range votesBytes {
		var v Vote
		if err := json.Unmarshal(vb, &v); err != nil {
			node.logger.Warn("malformed vote", "voter", i, "error", err)
			continue
		}
		votes = append(votes, v)
	}
	node.onReceiveVotes(votes)
	return node.checkAndCommit(proposer)
}

func ensureSameProposal(votes []Vote) error {
	if len(votes) == 0 {
		return errors.New("votes array is empty")
	}
	firstProposal := votes[0].ActionId
	for _, v := range votes[1:] {
		if v.ActionId != firstProposal {
			return errors.New("votes don't refer to the same proposal")
		}
	}
	return nil
}

// onReceiveVotes caches every vote that is signed by a known replica and
// refers to the current proposal.
func (node *ConsensusNode) onReceiveVotes(votes []Vote) {
	if err := ensureSameProposal(votes); err != nil {
		node.logger.Warn("inconsistent votes", "rank", node.network.GetRank(), "error", err)
	}
	for _, v := range votes {
		if v.ActionId != node.proposal.Id {
			node.logger.Warn("vote for another proposal", "voter", v.VoterID, "action_id", v.ActionId)
			continue
		}
		pub, present := node.playersPK[v.VoterID]
		if !present {
			node.logger.Warn("unknown voter", "voter", v.VoterID)
			continue
		}
		if ok, err := v.VerifySignature(pub); !ok {
			node.logger.Warn("bad vote signature", "voter", v.VoterID, "error", err)
			continue
		}
		node.votes[v.VoterID] = v
	}
}

// checkAndCommit applies the proposal if a quorum accepted it.
func (node *ConsensusNode) checkAndCommit(proposer int) (Decision, error) {
	if node.proposal == nil {
		return Decision{}, errors.New("missing proposal to commit")
	}
	votes := collectVotes(node.votes, "both")
	decision := Decision{
		Proposer: proposer,
		Action:   node.proposal,
		Votes:    votes,
	}

	accepts := len(collectVotes(node.votes, VoteAccept))
	rejectVotes := collectVotes(node.votes, VoteReject)
	switch {
	case accepts >= node.quorum:
		outcome, err := node.applyCommit(proposer, votes)
		if err != nil {
			return decision, err
		}
		decision.Committed = true
		decision.Outcome = outcome
		return decision, nil
	case len(rejectVotes) >= node.quorum:
		return decision, fmt.Errorf("%w: %s", ErrProposalRejected, getRejectReason(rejectVotes))
	default:
		return decision, fmt.Errorf("%w: %d accepts, %d rejects, need %d", ErrNoQuorum, accepts, len(rejectVotes), node.quorum)
	}
}

// collectVotes returns the votes with the given value ("both" for all of
// them) ordered by voter, so every replica records them identically.
func collectVotes(m map[int]Vote, filter VoteValue) []Vote {
	out := []Vote{}
	for _, v := range m {
		if v.Value == filter || filter == "both" {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterID < out[j].VoterID })
	return out
}

func getRejectReason(rejectVotes []Vote) string {
	var reasons []string
	seen := map[string]bool{}
	for _, v := range rejectVotes {
		if !seen[v.Reason] {
			seen[v.Reason] = true
			reasons = append(reasons, v.Reason)
		}
	}
	return strings.Join(reasons, "; ")
}

// applyCommit applies the action deterministically and records it. If the
// block cannot be recorded the pool is rolled back, so the pool never runs
// ahead of the ledger.
func (node *ConsensusNode) applyCommit(proposer int, votes []Vote) (lottery.Outcome, error) {
	p := node.proposal
	seed := drawSeed(node.ledger.LatestHash(), p.Id, votes)
	before := node.lotterySM.Snapshot()
	outcome, err := node.lotterySM.Apply(p.Payload, seed)
	if err != nil {
		return lottery.Outcome{}, fmt.Errorf("apply committed action %s: %w", p.Id, err)
	}
	extra := map[string]string{"action_id": p.Id}
	if err := node.ledger.Append(p.Payload, outcome, node.lotterySM.Snapshot(), votes, proposer, node.quorum, extra); err != nil {
		if rerr := node.lotterySM.Restore(before); rerr != nil {
			return lottery.Outcome{}, errors.Join(err, fmt.Errorf("roll back action %s: %w", p.Id, rerr))
		}
		return lottery.Outcome{}, fmt.Errorf("record action %s: %w", p.Id, err)
	}
	node.logger.Info("action committed",
		"action", p.Payload.Type,
		"player", p.Payload.PlayerID,
		"winner", outcome.Winner,
		"burned", outcome.Burned.String(),
	)
	return outcome, nil
}

// drawSeed derives the randomness of a commit from the ledger head, the
// proposal id and the signatures of the accepting votes. The proposer
// cannot know the other voters' signatures when it picks the proposal, so
// it cannot grind ids for a favourable draw.
func drawSeed(head string, actionId string, votes []Vote) []byte {
	parts := [][]byte{[]byte(head), []byte(actionId)}
	for _, v := range votes {
		if v.Value == VoteAccept {
			parts = append(parts, v.Signature)
		}
	}
	return lottery.DeriveSeed(parts...)
}
