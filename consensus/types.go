package consensus

import (
	"errors"

	"github.com/google/uuid"

	"github.com/luca-patrignani/flow-lottery/domain/lottery"
)

var (
	// ErrProposalRejected is returned when a quorum of replicas voted
	// against a proposal. The wrapping error carries their reasons.
	ErrProposalRejected = errors.New("proposal rejected")
	// ErrNoQuorum is returned when neither outcome reached the quorum.
	ErrNoQuorum = errors.New("no quorum reached")
)

// Action is the signed envelope in which a replica proposes a lottery
// action to the others.
type Action struct {
	Id        string         `json:"id"`
	PlayerID  int            `json:"actor_id"`
	Payload   lottery.Action `json:"payload"`
	Timestamp int64          `json:"ts"`
	Signature []byte         `json:"sig,omitempty"`
}

// MakeAction wraps payload in an unsigned envelope with a fresh id.
func MakeAction(actorId int, payload lottery.Action) (Action, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Action{}, err
	}
	return Action{
		Id:       id.String(),
		PlayerID: actorId,
		Payload:  payload,
	}, nil
}

type VoteValue string

const (
	VoteAccept VoteValue = "ACCEPT"
	VoteReject VoteValue = "REJECT"
)

// Vote is a replica's signed verdict on a proposal.
type Vote struct {
	ActionId  string    `json:"action_id"`
	VoterID   int       `json:"voter_id"`
	Value     VoteValue `json:"value"`
	Reason    string    `json:"reason,omitempty"`
	Signature []byte    `json:"sig,omitempty"`
}

// Decision is what one consensus round produced.
type Decision struct {
	Proposer int
	// Action is nil when the proposer passed its turn.
	Action    *Action
	Committed bool
	Outcome   lottery.Outcome
	Votes     []Vote
}

// Passed reports whether the proposer had nothing to propose.
func (d Decision) Passed() bool {
	return d.Action == nil
}

// peerInfo is exchanged by UpdatePeers.
type peerInfo struct {
	PublicKey []byte           `json:"public_key"`
	Player    lottery.PlayerID `json:"player"`
}
