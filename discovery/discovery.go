package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const multicastIpAddress = "239.0.0.1"

const keySize = 16

// Announcement is what a node tells the others about itself.
type Announcement struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Entry is a single announcement received from a peer at Time.
type Entry struct {
	Announcement
	Time time.Time
}

// Discover announces Info and listens for the announcements of other nodes.
// After Start succeeds, discovered entries are received on Entries.
type Discover struct {
	Info                         Announcement
	Port                         uint16
	IntervalBetweenAnnouncements time.Duration
	Entries                      chan Entry

	logger    *slog.Logger
	conn      *net.UDPConn
	sendConn  *net.UDPConn
	key       []byte
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Discover)

func WithPort(port uint16) Option {
	return func(d *Discover) { d.Port = port }
}

func WithInterval(interval time.Duration) Option {
	return func(d *Discover) { d.IntervalBetweenAnnouncements = interval }
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Discover) { d.logger = logger }
}

// New configures a discovery instance announcing info. It does not touch
// the network until Start.
func New(info Announcement, opts ...Option) *Discover {
	d := &Discover{
		Info:                         info,
		Port:                         53552,
		IntervalBetweenAnnouncements: time.Second,
		logger:                       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start joins the multicast group and starts announcing and listening in
// the background.
func (d *Discover) Start() error {
	payload, err := json.Marshal(d.Info)
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}
	id := uuid.New()
	d.key = id[:]
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.Entries = make(chan Entry, 10)
	d.done = make(chan struct{})

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", multicastIpAddress, d.Port))
	if err != nil {
		return err
	}
	d.conn, err = net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("join multicast group: %w", err)
	}
	d.sendConn, err = net.DialUDP("udp", nil, addr)
	if err != nil {
		_ = d.conn.Close()
		return fmt.Errorf("dial multicast group: %w", err)
	}
	go d.listen()
	go d.announce(append(slices.Clone(d.key), payload...))
	return nil
}

// Close stops announcing and listening.
func (d *Discover) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = errors.Join(d.conn.Close(), d.sendConn.Close())
	})
	return err
}

func (d *Discover) listen() {
	buffer := make([]byte, 1024)
	for {
		n, _, err := d.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			d.logger.Warn("discovery read failed", "error", err)
			continue
		}
		if n < keySize || slices.Equal(buffer[:keySize], d.key) {
			continue
		}
		var a Announcement
		if err := json.Unmarshal(buffer[keySize:n], &a); err != nil {
			d.logger.Debug("dropping malformed announcement", "error", err)
			continue
		}
		select {
		case d.Entries <- Entry{Announcement: a, Time: time.Now()}:
		case <-d.done:
			return
		}
	}
}

func (d *Discover) announce(message []byte) {
	ticker := time.NewTicker(d.IntervalBetweenAnnouncements)
	defer ticker.Stop()
	for {
		if _, err := d.sendConn.Write(message); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			d.logger.Warn("discovery announce failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-d.done:
			return
		}
	}
}

// Collect reads entries from d until want distinct addresses have been seen
// or ctx is done. The result is sorted by address.
func Collect(ctx context.Context, d *Discover, want int) ([]Announcement, error) {
	seen := make(map[string]Announcement)
	for len(seen) < want {
		select {
		case entry := <-d.Entries:
			if entry.Address == "" {
				continue
			}
			if _, ok := seen[entry.Address]; !ok {
				d.logger.Info("discovered node", "name", entry.Name, "address", entry.Address)
			}
			seen[entry.Address] = entry.Announcement
		case <-ctx.Done():
			return sorted(seen), fmt.Errorf("discovered %d of %d nodes: %w", len(seen), want, ctx.Err())
		}
	}
	return sorted(seen), nil
}

func sorted(seen map[string]Announcement) []Announcement {
	out := make([]Announcement, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
