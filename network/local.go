package network

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrClosed = errors.New("peer is closed")

// LocalPeer is an in-process replica endpoint. Peers of the same cluster
// exchange buffers through shared memory with the same Broadcast and
// AllToAll semantics as Peer, which makes it suitable for single-process
// simulations and tests.
type LocalPeer struct {
	rank    int
	hub     *localHub
	seq     uint64
	timeout time.Duration
}

type localHub struct {
	mu     sync.Mutex
	cond   *sync.Cond
	n      int
	rounds map[uint64]*localRound
	closed []bool
}

type localRound struct {
	data    [][]byte
	arrived int
	left    int
}

// NewLocalCluster returns n connected peers ranked 0..n-1. A zero timeout
// waits forever.
func NewLocalCluster(n int, timeout time.Duration) []*LocalPeer {
	hub := &localHub{
		n:      n,
		rounds: make(map[uint64]*localRound),
		closed: make([]bool, n),
	}
	hub.cond = sync.NewCond(&hub.mu)
	peers := make([]*LocalPeer, n)
	for i := range n {
		peers[i] = &LocalPeer{rank: i, hub: hub, timeout: timeout}
	}
	return peers
}

// Broadcast returns the buffer sent by root once every peer has called it.
func (p *LocalPeer) Broadcast(data []byte, root int) ([]byte, error) {
	if root < 0 || root >= p.hub.n {
		return nil, fmt.Errorf("invalid root %d", root)
	}
	recv, err := p.exchange(data, root == p.rank)
	if err != nil {
		return nil, err
	}
	return recv[root], nil
}

// AllToAll returns, at index i, the buffer sent by the peer with rank i.
func (p *LocalPeer) AllToAll(data []byte) ([][]byte, error) {
	return p.exchange(data, true)
}

func (p *LocalPeer) GetRank() int {
	return p.rank
}

func (p *LocalPeer) GetPeerCount() int {
	return p.hub.n
}

// Close wakes up the other peers so that they fail instead of waiting for
// this one.
func (p *LocalPeer) Close() error {
	h := p.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed[p.rank] = true
	h.cond.Broadcast()
	return nil
}

func (p *LocalPeer) exchange(data []byte, publish bool) ([][]byte, error) {
	h := p.hub
	p.seq++
	seq := p.seq

	var deadline time.Time
	if p.timeout > 0 {
		deadline = time.Now().Add(p.timeout)
		timer := time.AfterFunc(p.timeout, func() {
			h.mu.Lock()
			h.cond.Broadcast()
			h.mu.Unlock()
		})
		defer timer.Stop()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed[p.rank] {
		return nil, ErrClosed
	}
	round, ok := h.rounds[seq]
	if !ok {
		round = &localRound{data: make([][]byte, h.n)}
		h.rounds[seq] = round
	}
	if publish {
		round.data[p.rank] = append([]byte(nil), data...)
	}
	round.arrived++
	h.cond.Broadcast()

	for round.arrived < h.n {
		if err := h.failure(p.rank); err != nil {
			h.abandon(seq, round)
			return nil, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			h.abandon(seq, round)
			return nil, fmt.Errorf("peer %d timed out in round %d", p.rank, seq)
		}
		h.cond.Wait()
	}

	recv := make([][]byte, h.n)
	for i, b := range round.data {
		if b != nil {
			recv[i] = append([]byte(nil), b...)
		}
	}
	round.left++
	if round.left == h.n {
		delete(h.rounds, seq)
	}
	return recv, nil
}

// abandon drops a round that can no longer complete. Peers still waiting
// on it keep their reference and fail on their own.
func (h *localHub) abandon(seq uint64, round *localRound) {
	if h.rounds[seq] == round {
		delete(h.rounds, seq)
	}
}

func (h *localHub) failure(self int) error {
	for i, closed := range h.closed {
		if closed {
			if i == self {
				return ErrClosed
			}
			return fmt.Errorf("peer %d: %w", i, ErrClosed)
		}
	}
	return nil
}
