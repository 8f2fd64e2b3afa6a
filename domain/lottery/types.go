package lottery

import (
	"errors"
	"time"
)

var (
	ErrAlreadyMember    = errors.New("player is already in the pool")
	ErrNotMember        = errors.New("player is not in the pool")
	ErrNotCurrentWinner = errors.New("player is not the current winner")
	ErrIgnoreTokenCap   = errors.New("ignore token cap reached")
	ErrFlowRateTooLow   = errors.New("flow rate below the pool minimum")
	ErrUnknownAction    = errors.New("unknown action")
	ErrStaleAction      = errors.New("action predates the last committed action")
	ErrFutureAction     = errors.New("action is stamped ahead of the local clock")
)

// PlayerID is the opaque account handle of a player.
type PlayerID string

// Player is a participant holding an open channel towards the pool.
type Player struct {
	ID       PlayerID  `json:"id"`
	JoinedAt time.Time `json:"joined_at"`
	// FlowRate is the amount per second the player streams into the pool.
	// Only the weighted selection policy looks at it.
	FlowRate Amount `json:"flow_rate"`
}

type State string

const (
	StateEmpty  State = "empty"
	StateActive State = "active"
)

// PoolState is a point-in-time copy of everything the Pool owns.
// ActivePlayers keeps join order.
type PoolState struct {
	ActivePlayers        []Player `json:"active_players"`
	CurrentWinner        *Player  `json:"current_winner,omitempty"`
	LastHarvestTimestamp int64    `json:"last_harvest_timestamp"`
	// LastActionTimestamp is the time of the latest committed action.
	LastActionTimestamp  int64    `json:"last_action_timestamp,omitempty"`
	IgnoreTokenCount     uint64   `json:"ignore_token_count"`
	TotalBurned          Amount   `json:"total_burned"`
	TotalHarvested       Amount   `json:"total_harvested"`
}

// State reports Empty or Active.
func (s PoolState) State() State {
	if s.CurrentWinner == nil {
		return StateEmpty
	}
	return StateActive
}

// Validate checks the pool invariants: a winner exists iff the pool has
// members, the winner is a member, and ignore tokens require a winner.
func (s PoolState) Validate() error {
	seen := make(map[PlayerID]struct{}, len(s.ActivePlayers))
	for _, p := range s.ActivePlayers {
		if _, dup := seen[p.ID]; dup {
			return errors.New("duplicate active player " + string(p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	if (s.CurrentWinner == nil) != (len(s.ActivePlayers) == 0) {
		return errors.New("winner must be set exactly when the pool has players")
	}
	if s.CurrentWinner != nil {
		if _, ok := seen[s.CurrentWinner.ID]; !ok {
			return errors.New("winner " + string(s.CurrentWinner.ID) + " is not an active player")
		}
	}
	if s.IgnoreTokenCount > 0 && s.CurrentWinner == nil {
		return errors.New("ignore tokens held without a winner")
	}
	return nil
}

// Outcome describes the effect of one committed action.
type Outcome struct {
	Action         ActionType `json:"action"`
	PlayerID       PlayerID   `json:"player_id"`
	PreviousWinner PlayerID   `json:"previous_winner,omitempty"`
	Winner         PlayerID   `json:"winner,omitempty"`
	Redrawn        bool       `json:"redrawn"`
	// Skipped is set when an ignore token was spent instead of redrawing.
	Skipped      bool   `json:"skipped"`
	Harvested    Amount `json:"harvested"`
	Burned       Amount `json:"burned"`
	IgnoreTokens uint64 `json:"ignore_tokens"`
}

func (o Outcome) WinnerChanged() bool {
	return o.PreviousWinner != o.Winner
}
