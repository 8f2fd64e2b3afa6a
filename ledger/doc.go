// Package ledger implements an immutable blockchain ledger for recording
// the lottery actions agreed on by the consensus layer.
//
// # Core Components
//
// Blockchain: An append-only log of committed actions with cryptographic
// hash chaining for tamper detection.
//
// Block: A single committed action with its outcome, the pool state after
// it, the quorum votes and a link to the previous block.
//
// Store: BoltDB persistence for blocks, so a node can restart from the
// pool state recorded in its latest block.
//
// # Security Properties
//
// The blockchain provides:
//   - Immutability: Once recorded, blocks cannot be modified
//   - Verifiability: Anyone can verify the integrity of the entire chain
//   - Auditability: Complete history of joins, leaves, triggers and votes
//   - Tamper detection: Any modification breaks the hash chain
//
// # Usage
//
// Create a blockchain from the initial pool state (or open one from a
// Store), then append blocks as consensus decisions are reached. The hash
// of the latest block seeds the next winner draw.
package ledger
