package lottery

import (
	"encoding/json"
	"time"
)

type ActionType string

const (
	ActionEnter       ActionType = "enter"
	ActionLeave       ActionType = "leave"
	ActionTrigger     ActionType = "trigger"
	ActionKeepWinning ActionType = "keep_winning"
)

// Action is one externally visible command against the pool, already
// sequenced and with its fee authorized.
type Action struct {
	Type     ActionType `json:"type"`
	PlayerID PlayerID   `json:"player_id"`
	// FlowRate is only meaningful for ActionEnter.
	FlowRate Amount `json:"flow_rate"`
	// Timestamp is the Unix second at which the action takes effect.
	Timestamp int64 `json:"timestamp"`
}

func (a Action) Time() time.Time {
	return time.Unix(a.Timestamp, 0).UTC()
}

// ToConsensusPayload serializes the action for the consensus layer.
func (a *Action) ToConsensusPayload() ([]byte, error) {
	return json.Marshal(a)
}

// FromConsensusPayload is the inverse of ToConsensusPayload.
func FromConsensusPayload(data []byte) (*Action, error) {
	var a Action
	err := json.Unmarshal(data, &a)
	return &a, err
}
