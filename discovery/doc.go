// Package discovery finds other lottery nodes on the local network.
//
// Every node announces a JSON encoded Announcement (its name and the address
// its peer listens on) over UDP multicast and listens for the announcements
// of the others:
//
//	d := discovery.New(discovery.Announcement{Name: "alice", Address: "10.0.0.2:7000"},
//		discovery.WithPort(53552))
//	if err := d.Start(); err != nil {
//		return err
//	}
//	defer d.Close()
//
//	peers, err := discovery.Collect(ctx, d, 3)
//
// Behavior:
//   - Announcements are sent to 239.0.0.1 on the configured port.
//   - Each instance prefixes its packets with a random key to filter out its own.
//   - Malformed packets are logged and dropped.
//   - Discovered entries are delivered on the Entries channel until Close.
package discovery
