// Package consensus implements a Byzantine Fault Tolerant (BFT) consensus protocol
// for replicated lottery pools. It provides mechanisms for proposing, voting on, and
// committing lottery actions across multiple nodes with cryptographic verification.
//
// The consensus layer ensures that all replicas agree on the sequence of joins,
// leaves, triggers and keep-winning purchases, and that they all draw the same
// winner for each of them.
//
// # Core Components
//
// ConsensusNode: Manages the consensus protocol for a single node, including
// proposal creation, vote collection, and commitment logic.
//
// StateManager: Interface for pool validation and transitions.
//
// Ledger: Interface for maintaining an immutable log of consensus decisions.
//
// NetworkLayer: Interface for peer-to-peer communication primitives.
//
// # Consensus Protocol
//
// Replicas take turns in round-robin order. In each round:
//  1. The proposer broadcasts a signed action, or an empty message to pass
//  2. Each node validates the action independently against its pool
//  3. Nodes exchange their signed votes (ACCEPT or REJECT)
//  4. Once a quorum accepts, every node applies the action and appends a block
//  5. A quorum of rejections drops the action without touching the pool
//
// # Shared Randomness
//
// A committed action is applied with a random source seeded from the hash
// of the latest block and the action id, so the winner draw is identical on
// every replica without any further communication.
//
// # Byzantine Fault Tolerance
//
// The system can tolerate up to (n-1)/3 Byzantine (malicious or faulty) nodes
// out of n total nodes. The quorum requirement ensures that honest nodes always
// form a majority for any decision.
package consensus
