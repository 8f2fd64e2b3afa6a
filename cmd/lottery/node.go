package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/luca-patrignani/flow-lottery/domain/lottery"
	"github.com/luca-patrignani/flow-lottery/ledger"
	"github.com/luca-patrignani/flow-lottery/network"
)

// rankAddresses sorts and deduplicates addresses; the rank of a node is the
// position of its address.
func rankAddresses(addresses []string, self string) ([]string, int) {
	sorted := make([]string, 0, len(addresses))
	seen := map[string]bool{}
	for _, a := range addresses {
		if !seen[a] {
			seen[a] = true
			sorted = append(sorted, a)
		}
	}
	sort.Strings(sorted)
	rank := sort.SearchStrings(sorted, self)
	return sorted, rank
}

func startPeer(rank int, addresses []string, l net.Listener, opts []network.PeerOption) *network.Peer {
	mapAddresses := make(map[int]string, len(addresses))
	for i, addr := range addresses {
		mapAddresses[i] = addr
	}
	peer := network.NewPeerWithOptions(rank, mapAddresses, opts...)
	peer.Start(l)
	return peer
}

func testConnections(peer *network.Peer, name string) ([]string, error) {
	byteNames, err := peer.AllToAll([]byte(name))
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, name := range byteNames {
		names = append(names, string(name))
	}
	return names, nil
}

// uniqueNames fails when two nodes would play as the same player.
func uniqueNames(names []string) error {
	seen := map[string]int{}
	for i, n := range names {
		if n == "" {
			return fmt.Errorf("node %d has an empty name", i)
		}
		if j, ok := seen[n]; ok {
			return fmt.Errorf("nodes %d and %d are both named %q", j, i, n)
		}
		seen[n] = i
	}
	return nil
}

// agreeOnGenesis makes every node start from the empty pool state proposed
// by rank 0, so that all genesis blocks hash the same.
func agreeOnGenesis(peer *network.Peer) (lottery.PoolState, error) {
	var payload []byte
	if peer.GetRank() == 0 {
		var err error
		payload, err = json.Marshal(lottery.PoolState{LastHarvestTimestamp: time.Now().Unix()})
		if err != nil {
			return lottery.PoolState{}, err
		}
	}
	data, err := peer.Broadcast(payload, 0)
	if err != nil {
		return lottery.PoolState{}, err
	}
	var genesis lottery.PoolState
	if err := json.Unmarshal(data, &genesis); err != nil {
		return lottery.PoolState{}, fmt.Errorf("decode genesis state: %w", err)
	}
	return genesis, genesis.Validate()
}

// checkLedgers compares the chain heads of every node.
func checkLedgers(peer *network.Peer, bc *ledger.Blockchain) error {
	heads, err := peer.AllToAll([]byte(bc.LatestHash()))
	if err != nil {
		return err
	}
	var errs []error
	for i, h := range heads {
		if string(h) != bc.LatestHash() {
			errs = append(errs, fmt.Errorf("node %d is at %.12s, this node at %.12s", i, h, bc.LatestHash()))
		}
	}
	return errors.Join(errs...)
}
