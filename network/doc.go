// Package network provides peer-to-peer communication primitives for the
// replicas of a lottery pool. It implements reliable broadcast and
// all-to-all communication patterns with synchronization barriers.
//
// # Core Components
//
// Peer: Network node that handles HTTP(S) based communication between
// replicas. It implements the consensus.NetworkLayer interface.
//
// LocalPeer: In-process implementation of the same interface, connecting
// the replicas of a single process through shared memory.
//
// # Communication Patterns
//
// Broadcast: One node sends data to all other nodes (one-to-all).
// All nodes receive the same data.
//
// AllToAll: Each node sends data to all other nodes (all-to-all).
// Each node receives data from every other node.
//
// # Synchronization
//
// All communication methods include implicit barrier synchronization,
// ensuring that no peer can proceed until all peers have participated
// in the communication round. This is essential for consensus protocols.
//
// # Timeout Support
//
// Peers are built with a timeout. A sender keeps retrying until the
// receiver is ready or the timeout expires, and a receiver gives up when no
// data arrives in time.
package network
