package consensus

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/luca-patrignani/flow-lottery/domain/lottery"
)

// ConsensusNode represents a replica participating in the BFT consensus protocol.
// Each node maintains cryptographic keys, tracks peer public keys and the
// lottery player each peer acts for, and coordinates the state machine and
// the ledger.
type ConsensusNode struct {
	pub       ed25519.PublicKey
	priv      ed25519.PrivateKey
	playersPK map[int]ed25519.PublicKey
	players   map[int]lottery.PlayerID
	quorum    int

	lotterySM StateManager
	ledger    Ledger
	network   NetworkLayer
	logger    *slog.Logger

	proposal *Action
	votes    map[int]Vote
}

type NodeOption func(*ConsensusNode)

func WithLogger(logger *slog.Logger) NodeOption {
	return func(n *ConsensusNode) { n.logger = logger }
}

// NewConsensusNode creates and initializes a new consensus node with the given cryptographic keys,
// peer public keys, state machine, ledger, and network layer.
//
// The quorum threshold is computed using Byzantine Fault Tolerance formula: ceiling((2n+2)/3),
// where n is the number of peers. This ensures safety with up to (n-1)/3 Byzantine failures.
//
// Parameters:
//   - pub: This node's Ed25519 public key for signature verification
//   - priv: This node's Ed25519 private key for signing actions and votes
//   - peers: Map of ranks to their public keys
//   - sm: State machine implementing the lottery pool
//   - ledger: Ledger for recording consensus decisions
//   - network: Network layer for P2P communication
//
// Returns a fully initialized consensus node ready to participate in the protocol.
func NewConsensusNode(
	pub ed25519.PublicKey,
	priv ed25519.PrivateKey,
	peers map[int]ed25519.PublicKey,
	sm StateManager,
	ledger Ledger,
	network NetworkLayer,
	opts ...NodeOption,
) *ConsensusNode {
	node := &ConsensusNode{
		pub:       pub,
		priv:      priv,
		playersPK: peers,
		players:   map[int]lottery.PlayerID{},
		quorum:    computeQuorum(len(peers)),
		lotterySM: sm,
		ledger:    ledger,
		network:   network,
		logger:    slog.Default(),
		votes:     map[int]Vote{},
	}
	for _, opt := range opts {
		opt(node)
	}
	return node
}

// GetPriv returns this node's private key.
// Warning: Handle with care as this exposes sensitive cryptographic material.
func (node *ConsensusNode) GetPriv() ed25519.PrivateKey {
	return node.priv
}

// Quorum returns the number of matching votes needed to decide.
func (node *ConsensusNode) Quorum() int {
	return node.quorum
}

// Players returns the lottery player each rank acts for, as learned by
// UpdatePeers.
func (node *ConsensusNode) Players() map[int]lottery.PlayerID {
	out := make(map[int]lottery.PlayerID, len(node.players))
	for k, v := range node.players {
		out[k] = v
	}
	return out
}

// RemoveNode removes a replica from the consensus group and recalculates the quorum.
func (node *ConsensusNode) RemoveNode(leaver int) {
	delete(node.playersPK, leaver)
	delete(node.players, leaver)
	node.quorum = computeQuorum(len(node.playersPK))
}

// UpdatePeers exchanges public keys and player identities with all nodes
// via an AllToAll operation. This synchronizes the peer mapping across all nodes.
//
// Returns an error if the exchange fails or if any received entry cannot be unmarshaled.
//
// This method should be called during initialization to ensure all nodes have
// consistent views of the network topology and cryptographic identities.
func (node *ConsensusNode) UpdatePeers() error {
	b, err := json.Marshal(peerInfo{PublicKey: node.pub, Player: node.lotterySM.LocalPlayer()})
	if err != nil {
		return err
	}
	infoBytes, err := node.network.AllToAll(b)
	if err != nil {
		return err
	}
	pk := make(map[int]ed25519.PublicKey, len(infoBytes))
	players := make(map[int]lottery.PlayerID, len(infoBytes))
	for i, raw := range infoBytes {
		var info peerInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return fmt.Errorf("failed to unmarshal peer info of %d: %w", i, err)
		}
		pk[i] = ed25519.PublicKey(info.PublicKey)
		players[i] = info.Player
	}
	node.playersPK = pk
	node.players = players
	node.quorum = computeQuorum(len(pk))
	return nil
}

// computeQuorum calculates the minimum number of votes required to reach Byzantine Fault
// Tolerance consensus. It returns ceiling((2n+2)/3) where n is the number of nodes.
func computeQuorum(n int) int { return (2*n + 2) / 3 }
