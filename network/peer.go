package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	clockHeader  = "Clock"
	senderHeader = "Sender-Rank"
)

// Peer is an helper struct for communication between replicas.
// The Rank is an identifier of the Peer.
// Addresses[i] contains the host:port to reach the Peer with Rank i.
type Peer struct {
	Rank      int
	Addresses map[int]string
	clock     uint64
	server    *http.Server
	handler   *broadcastHandler
	timeout   time.Duration
	client    *http.Client
	tlsConfig *tls.Config
	logger    *slog.Logger
}

// NewPeer creates a plain HTTP peer and starts serving on l.
func NewPeer(rank int, addresses map[int]string, l net.Listener, timeout time.Duration) *Peer {
	p := NewPeerWithOptions(rank, addresses, WithTimeout(timeout))
	p.Start(l)
	return p
}

// Start serves the peer's handler on l, wrapping it in TLS when a
// certificate was configured.
func (p *Peer) Start(l net.Listener) {
	if p.tlsConfig != nil && len(p.tlsConfig.Certificates) > 0 {
		l = tls.NewListener(l, p.tlsConfig)
	}
	go func() {
		err := p.server.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("peer server stopped", "rank", p.Rank, "error", err)
		}
	}()
}

func (p *Peer) Close() error {
	return p.server.Shutdown(context.Background())
}

// GetRank, GetPeerCount and GetAddresses let a Peer serve as the network
// layer of a consensus node.
func (p *Peer) GetRank() int {
	return p.Rank
}

func (p *Peer) GetPeerCount() int {
	return len(p.Addresses)
}

// GetAddresses returns a copy of the rank to address table.
func (p *Peer) GetAddresses() map[int]string {
	return copyMap(p.Addresses)
}

type broadcastHandler struct {
	active         atomic.Bool
	clock          atomic.Uint64
	contentChannel chan []byte
	errChannel     chan error
}

func (h *broadcastHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	if !h.active.Load() {
		rw.WriteHeader(http.StatusNotAcceptable)
		return
	}
	senderClock, err := strconv.ParseUint(req.Header.Get(clockHeader), 10, 64)
	if err != nil {
		rw.WriteHeader(http.StatusNotAcceptable)
		h.errChannel <- fmt.Errorf("from handler: invalid %s header: %w", clockHeader, err)
		return
	}
	if senderClock != h.clock.Load() {
		rw.WriteHeader(http.StatusNotAcceptable)
		return
	}
	content, err := io.ReadAll(req.Body)
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		h.errChannel <- fmt.Errorf("from handler: %w", err)
		return
	}
	h.contentChannel <- content
	rw.WriteHeader(http.StatusAccepted)
}

// Broadcast makes the Peer with Rank root send bufferSend to every node.
// The returned buffer holds the value sent by root.
// This function will implicitly synchronize the peers.
func (p *Peer) Broadcast(bufferSend []byte, root int) ([]byte, error) {
	bufferRecv, err := p.broadcastNoBarrier(bufferSend, root)
	if err != nil {
		return nil, err
	}
	if err := p.barrier(); err != nil {
		return nil, err
	}
	return bufferRecv, nil
}

// AllToAll makes every caller send bufferSend to every node.
// bufferRecv[i] will contain the value sent by the Peer with Rank i.
// This function will implicitly synchronize the peers.
func (p *Peer) AllToAll(bufferSend []byte) (bufferRecv [][]byte, err error) {
	size, ok := maxKey(p.Addresses)
	if !ok {
		return nil, errors.New("no addresses found")
	}

	orderedRanks := make([]int, 0, len(p.Addresses))
	for k := range p.Addresses {
		orderedRanks = append(orderedRanks, k)
	}
	sort.Ints(orderedRanks)

	bufferRecv = make([][]byte, size+1)
	for _, i := range orderedRanks {
		recv, err := p.broadcastNoBarrier(bufferSend, i)
		if err != nil {
			return nil, err
		}
		bufferRecv[i] = recv
	}
	return bufferRecv, nil
}

// barrier guarantees that no Peer's control flow will leave this function
// until every peer has entered it.
func (p *Peer) barrier() error {
	_, err := p.AllToAll(nil)
	return err
}

func (p *Peer) url(addr string) string {
	if p.tlsConfig != nil {
		return "https://" + addr
	}
	return "http://" + addr
}

func (p *Peer) broadcastNoBarrier(bufferSend []byte, root int) ([]byte, error) {
	p.clock++
	if root == p.Rank {
		for i, addr := range p.Addresses {
			if i == p.Rank {
				continue
			}
			if err := p.send(i, addr, bufferSend); err != nil {
				return nil, err
			}
		}
		return bufferSend, nil
	}
	p.handler.clock.Store(p.clock)
	p.handler.active.Store(true)
	defer p.handler.active.Store(false)

	var timeout <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case recv := <-p.handler.contentChannel:
		return recv, nil
	case err := <-p.handler.errChannel:
		return nil, err
	case <-timeout:
		err := p.Close()
		return nil, errors.Join(err, fmt.Errorf("peer %d timed out waiting for %d", p.Rank, root))
	}
}

// send posts content to the peer at addr until it is accepted, which
// happens once that peer has reached the same clock.
func (p *Peer) send(rank int, addr string, content []byte) error {
	start := time.Now()
	for {
		status, err := p.post(addr, content)
		if err == nil && status == http.StatusAccepted {
			return nil
		}
		if p.timeout > 0 && time.Since(start) > p.timeout {
			if err != nil {
				return fmt.Errorf("connection attempts to peer %d timed out with error %w", rank, err)
			}
			return fmt.Errorf("connection attempts to peer %d timed out with status code %d", rank, status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (p *Peer) post(addr string, content []byte) (int, error) {
	req, err := http.NewRequest(http.MethodPost, p.url(addr), bytes.NewReader(content))
	if err != nil {
		return 0, err
	}
	req.Header.Set(clockHeader, strconv.FormatUint(p.clock, 10))
	req.Header.Set(senderHeader, strconv.Itoa(p.Rank))
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// CreateListeners opens n listeners on random localhost ports.
func CreateListeners(n int) (map[int]net.Listener, map[int]string) {
	listeners := make(map[int]net.Listener)
	addresses := make(map[int]string)
	for i := 0; i < n; i++ {
		l, err := net.Listen("tcp", "localhost:0")
		if err != nil {
			panic(err)
		}
		listeners[i] = l
		addresses[i] = l.Addr().String()
	}
	return listeners, addresses
}

func maxKey(m map[int]string) (max int, ok bool) {
	for k := range m {
		if !ok || k > max {
			max = k
			ok = true
		}
	}
	return
}

func copyMap(original map[int]string) map[int]string {
	copied := make(map[int]string, len(original))
	for k, v := range original {
		copied[k] = v
	}
	return copied
}
