package ledger

import (
	"github.com/luca-patrignani/flow-lottery/consensus"
	"github.com/luca-patrignani/flow-lottery/domain/lottery"
)

// GenesisAction marks the first block of every chain.
const GenesisAction lottery.ActionType = "genesis"

// Block records one committed lottery action together with its outcome and
// the pool state right after it was applied.
type Block struct {
	Index     int               `json:"index"`
	Timestamp int64             `json:"timestamp"`
	PrevHash  string            `json:"prev_hash"`
	Hash      string            `json:"hash"`
	Action    lottery.Action    `json:"action"`
	Outcome   lottery.Outcome   `json:"outcome"`
	State     lottery.PoolState `json:"state"`
	Votes     []consensus.Vote  `json:"votes"`
	Metadata  Metadata          `json:"metadata"`
}

type Metadata struct {
	ProposerID int               `json:"proposer_id"`
	Quorum     int               `json:"quorum"`
	Extra      map[string]string `json:"extra,omitempty"`
}
