package consensus

import "github.com/luca-patrignani/flow-lottery/domain/lottery"

// StateManager defines the interface for managing lottery pool transitions.
// Implementations must be deterministic: two replicas applying the same
// action with the same seed must reach the same state.
type StateManager interface {
	// Validate checks if the given action would be accepted in the current
	// pool state, without changing it.
	// Returns an error describing why the action is invalid, or nil if valid.
	Validate(payload lottery.Action) error

	// Apply executes a committed action, drawing any randomness it needs from
	// a source seeded with seed.
	// Returns the outcome of the transition, or an error if it was rejected.
	Apply(payload lottery.Action, seed []byte) (lottery.Outcome, error)

	// Snapshot returns a copy of the current pool state.
	Snapshot() lottery.PoolState

	// Restore replaces the pool state with a snapshot. It rolls back an
	// applied action whose block could not be recorded.
	Restore(state lottery.PoolState) error

	// LocalPlayer returns the player this replica acts for.
	LocalPlayer() lottery.PlayerID
}

// Ledger defines the interface for maintaining an immutable log of consensus decisions.
// Implementations should provide append-only semantics with cryptographic verification.
type Ledger interface {
	// Append adds a new consensus decision to the ledger.
	// The decision includes the action, its outcome, the pool state after it,
	// votes, proposer, and quorum threshold.
	// Optional extra metadata can be included (e.g., the envelope id).
	Append(action lottery.Action, outcome lottery.Outcome, state lottery.PoolState, votes []Vote, proposerID int, quorum int, extra ...map[string]string) error

	// LatestHash returns the hash of the last recorded decision. It seeds the
	// randomness of the next committed action.
	LatestHash() string

	// Verify checks the integrity of the entire ledger.
	// Returns an error if any tampering or inconsistency is detected.
	Verify() error
}

// NetworkLayer abstracts peer-to-peer communication primitives.
// Implementations must provide reliable broadcast and all-to-all communication
// patterns that implicitly synchronize the peers.
type NetworkLayer interface {
	// Broadcast sends data from a specific node (identified by root) to all peers.
	// Returns the data received from the root node or an error if communication fails.
	Broadcast(data []byte, root int) ([]byte, error)

	// AllToAll sends data from this node to all peers and receives data from all peers.
	// Returns a slice where index i contains the data sent by peer i.
	AllToAll(data []byte) ([][]byte, error)

	// GetRank returns this node's unique identifier in the network.
	GetRank() int

	// GetPeerCount returns the total number of nodes including this one.
	GetPeerCount() int

	// Close gracefully shuts down the network layer and releases resources.
	Close() error
}
