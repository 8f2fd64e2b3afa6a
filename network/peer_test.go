package network

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// runCluster starts n peers on localhost and runs body on each of them
// concurrently. Every peer is closed once its body returns.
func runCluster(t *testing.T, n int, timeout time.Duration, body func(p *Peer) error) {
	t.Helper()
	listeners, addresses := CreateListeners(n)
	fatal := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			p := NewPeer(i, addresses, listeners[i], timeout)
			err := body(p)
			if closeErr := p.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				err = fmt.Errorf("rank %d: %w", i, err)
			}
			fatal <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

func stagger(p *Peer) {
	time.Sleep(100 * time.Millisecond * time.Duration(p.GetRank()))
}

func TestAllToAllOrdersByRank(t *testing.T) {
	for _, n := range []int{2, 3, 5} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			runCluster(t, n, 30*time.Second, func(p *Peer) error {
				stagger(p)
				names, err := p.AllToAll([]byte(fmt.Sprintf("player-%d", p.GetRank())))
				if err != nil {
					return err
				}
				if len(names) != n {
					return fmt.Errorf("expected %d names, got %q", n, names)
				}
				for j, name := range names {
					if expected := fmt.Sprintf("player-%d", j); string(name) != expected {
						return fmt.Errorf("slot %d: expected %s, actual %s", j, expected, name)
					}
				}
				return nil
			})
		})
	}
}

func TestBroadcastFromEveryRoot(t *testing.T) {
	n := 4
	runCluster(t, n, 30*time.Second, func(p *Peer) error {
		for root := 0; root < n; root++ {
			stagger(p)
			recv, err := p.Broadcast([]byte{byte(root), byte(10 * p.GetRank())}, root)
			if err != nil {
				return fmt.Errorf("round %d: %w", root, err)
			}
			if len(recv) != 2 || recv[0] != byte(root) || recv[1] != byte(10*root) {
				return fmt.Errorf("round %d: expected the payload of root, got %v", root, recv)
			}
		}
		return nil
	})
}

func TestBroadcastFailsWhenAReplicaIsMissing(t *testing.T) {
	n := 5
	listeners, addresses := CreateListeners(n)
	fatal := make(chan error, n)
	// the last replica never starts
	for i := 0; i < n-1; i++ {
		go func(i int) {
			p := NewPeer(i, addresses, listeners[i], 2*time.Second)
			defer p.Close()
			_, err := p.Broadcast([]byte("draw"), 0)
			fatal <- err
		}(i)
	}
	for i := 0; i < n-1; i++ {
		err := <-fatal
		if err == nil {
			t.Fatal("expected the missing replica to make the broadcast fail")
		}
		t.Log(err)
	}
}

// No replica may leave a round before every replica has entered it.
func TestRoundsAreBarriers(t *testing.T) {
	rounds := map[string]func(p *Peer) error{
		"broadcast": func(p *Peer) error {
			_, err := p.Broadcast(nil, 0)
			return err
		},
		"all-to-all": func(p *Peer) error {
			_, err := p.AllToAll([]byte{})
			return err
		},
	}
	for name, round := range rounds {
		t.Run(name, func(t *testing.T) {
			n := 6
			var mu sync.Mutex
			var events []string
			record := func(e string) {
				mu.Lock()
				defer mu.Unlock()
				events = append(events, e)
			}
			runCluster(t, n, 30*time.Second, func(p *Peer) error {
				stagger(p)
				record("enter")
				if err := round(p); err != nil {
					return err
				}
				record("leave")
				return nil
			})
			if len(events) != 2*n {
				t.Fatalf("expected %d events, got %v", 2*n, events)
			}
			for i, e := range events {
				expected := "enter"
				if i >= n {
					expected = "leave"
				}
				if e != expected {
					t.Fatalf("event %d: expected %s, got %v", i, expected, events)
				}
			}
		})
	}
}

func TestPeerReportsItsTopology(t *testing.T) {
	addresses := map[int]string{0: "10.0.0.1:7000", 1: "10.0.0.2:7000", 2: "10.0.0.3:7000"}
	p := NewPeerWithOptions(1, addresses)
	if p.GetRank() != 1 {
		t.Fatalf("expected rank 1, got %d", p.GetRank())
	}
	if p.GetPeerCount() != 3 {
		t.Fatalf("expected 3 peers, got %d", p.GetPeerCount())
	}
	got := p.GetAddresses()
	got[2] = "evil:1"
	if p.GetAddresses()[2] != "10.0.0.3:7000" {
		t.Fatalf("changing the returned table must not change the peer")
	}
}
