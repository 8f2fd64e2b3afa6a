package main

import (
	"fmt"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/luca-patrignani/flow-lottery/domain/lottery"
	"github.com/luca-patrignani/flow-lottery/ledger"
	"github.com/luca-patrignani/flow-lottery/network"
)

func listeners(t *testing.T, n int) (map[int]net.Listener, []string) {
	t.Helper()
	ml, mapAddresses := network.CreateListeners(n)
	addresses := []string{}
	for i := 0; i < n; i++ {
		addresses = append(addresses, mapAddresses[i])
	}
	return ml, addresses
}

func TestTestConnections(t *testing.T) {
	n := 5
	mapListeners, addresses := listeners(t, n)
	errChan := make(chan error)
	for i := range n {
		go func() {
			peer := startPeer(i, addresses, mapListeners[i], []network.PeerOption{network.WithTimeout(10 * time.Second)})
			names, err := testConnections(peer, "name"+fmt.Sprint(i))
			if err != nil {
				errChan <- err
				return
			}
			if len(names) != n {
				errChan <- fmt.Errorf("expected %d names, got %d", n, len(names))
				return
			}
			slices.Sort(names)
			for j := range n {
				expectedName := "name" + fmt.Sprint(j)
				if names[j] != expectedName {
					errChan <- fmt.Errorf("expected name %s, got %s", expectedName, names[j])
					return
				}
			}
			errChan <- nil
		}()
	}
	for range n {
		if err := <-errChan; err != nil {
			t.Fatal(err)
		}
	}
}

// TestGenesisAndLedgerAgreement checks that every node adopts the genesis
// state of rank 0 and therefore starts from the same chain head.
func TestGenesisAndLedgerAgreement(t *testing.T) {
	n := 3
	mapListeners, addresses := listeners(t, n)
	errChan := make(chan error)
	heads := make([]string, n)
	for i := range n {
		go func() {
			peer := startPeer(i, addresses, mapListeners[i], []network.PeerOption{network.WithTimeout(10 * time.Second)})
			genesis, err := agreeOnGenesis(peer)
			if err != nil {
				errChan <- err
				return
			}
			bc := ledger.NewBlockchain(genesis)
			heads[i] = bc.LatestHash()
			errChan <- checkLedgers(peer, bc)
		}()
	}
	for range n {
		if err := <-errChan; err != nil {
			t.Fatal(err)
		}
	}
	for i := 1; i < n; i++ {
		if heads[i] != heads[0] {
			t.Fatalf("node %d started from %s, node 0 from %s", i, heads[i], heads[0])
		}
	}
}

func TestCheckLedgersDetectsDivergence(t *testing.T) {
	n := 2
	mapListeners, addresses := listeners(t, n)
	errChan := make(chan error)
	for i := range n {
		go func() {
			peer := startPeer(i, addresses, mapListeners[i], []network.PeerOption{network.WithTimeout(10 * time.Second)})
			bc := ledger.NewBlockchain(lottery.PoolState{LastHarvestTimestamp: int64(i)})
			if err := checkLedgers(peer, bc); err == nil {
				errChan <- fmt.Errorf("node %d did not notice the divergence", i)
				return
			}
			errChan <- nil
		}()
	}
	for range n {
		if err := <-errChan; err != nil {
			t.Fatal(err)
		}
	}
}

func TestRankAddresses(t *testing.T) {
	sorted, rank := rankAddresses([]string{"10.0.0.3:1", "10.0.0.1:1", "10.0.0.2:1", "10.0.0.1:1"}, "10.0.0.2:1")
	if !slices.Equal(sorted, []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"}) {
		t.Fatalf("unexpected order %v", sorted)
	}
	if rank != 1 {
		t.Fatalf("expected rank 1, got %d", rank)
	}
}

func TestUniqueNames(t *testing.T) {
	if err := uniqueNames([]string{"alice", "bob"}); err != nil {
		t.Fatal(err)
	}
	if err := uniqueNames([]string{"alice", "bob", "alice"}); err == nil {
		t.Fatal("expected duplicate names to be refused")
	}
	if err := uniqueNames([]string{"alice", ""}); err == nil {
		t.Fatal("expected an empty name to be refused")
	}
}
