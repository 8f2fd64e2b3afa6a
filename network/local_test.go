package network

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"
)

func TestLocalAllToAll(t *testing.T) {
	n := 5
	peers := NewLocalCluster(n, 5*time.Second)
	fatal := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(p *LocalPeer) {
			for round := 0; round < 3; round++ {
				recv, err := p.AllToAll([]byte(strconv.Itoa(round*10 + p.GetRank())))
				if err != nil {
					fatal <- err
					return
				}
				for j := 0; j < n; j++ {
					if string(recv[j]) != strconv.Itoa(round*10+j) {
						fatal <- fmt.Errorf("from peer %d: expected %d, actual %s", p.GetRank(), round*10+j, recv[j])
						return
					}
				}
			}
			fatal <- nil
		}(peers[i])
	}
	for i := 0; i < n; i++ {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

func TestLocalBroadcast(t *testing.T) {
	n := 4
	peers := NewLocalCluster(n, 5*time.Second)
	fatal := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(p *LocalPeer) {
			for root := 0; root < n; root++ {
				time.Sleep(time.Millisecond * time.Duration(p.GetRank()))
				recv, err := p.Broadcast([]byte{byte(10 * p.GetRank())}, root)
				if err != nil {
					fatal <- err
					return
				}
				if len(recv) != 1 || recv[0] != byte(10*root) {
					fatal <- fmt.Errorf("from peer %d: expected %d, actual %v", p.GetRank(), 10*root, recv)
					return
				}
			}
			fatal <- nil
		}(peers[i])
	}
	for i := 0; i < n; i++ {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

func TestLocalTimeout(t *testing.T) {
	peers := NewLocalCluster(3, 100*time.Millisecond)
	_, err := peers[0].Broadcast([]byte("alone"), 0)
	if err == nil {
		t.Fatal("expected a timeout")
	}
	if n := pendingRounds(peers[0]); n != 0 {
		t.Fatalf("expected the failed round to be dropped, %d left", n)
	}
}

func pendingRounds(p *LocalPeer) int {
	p.hub.mu.Lock()
	defer p.hub.mu.Unlock()
	return len(p.hub.rounds)
}

func TestLocalClosedPeer(t *testing.T) {
	peers := NewLocalCluster(2, 0)
	done := make(chan error)
	go func() {
		_, err := peers[0].AllToAll(nil)
		done <- err
	}()
	if err := peers[1].Close(); err != nil {
		t.Fatal(err)
	}
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if n := pendingRounds(peers[0]); n != 0 {
		t.Fatalf("expected the failed round to be dropped, %d left", n)
	}
}
