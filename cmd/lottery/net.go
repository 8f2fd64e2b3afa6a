package main

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

var errPeerAddress = errors.New("invalid peer address")

// completeAddress fills the leading octets that partial omits with those of
// self: on 192.168.0.1, "42" is 192.168.0.42 and "15.42" is 192.168.15.42.
// An empty partial is self.
func completeAddress(self netip.Addr, partial string) (netip.Addr, error) {
	if partial == "" {
		return self, nil
	}
	if !self.Is4() {
		addr, err := netip.ParseAddr(partial)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("%w: %v", errPeerAddress, err)
		}
		return addr, nil
	}
	parts := strings.Split(partial, ".")
	if len(parts) > 4 {
		return netip.Addr{}, fmt.Errorf("%w: %q has more than 4 octets", errPeerAddress, partial)
	}
	octets := self.As4()
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("%w: octet %q of %q", errPeerAddress, part, partial)
		}
		octets[4-len(parts)+i] = byte(v)
	}
	return netip.AddrFrom4(octets), nil
}

// resolvePeer turns a configured or typed peer into the host:port its node
// listens on. The port defaults to this node's own port.
func resolvePeer(self netip.AddrPort, peer string) (string, error) {
	host, port := strings.TrimSpace(peer), self.Port()
	if h, p, err := net.SplitHostPort(host); err == nil {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return "", fmt.Errorf("%w: port of %q", errPeerAddress, peer)
		}
		host, port = h, uint16(n)
	}
	if port == 0 {
		return "", fmt.Errorf("%w: %q has no port", errPeerAddress, peer)
	}
	addr, err := completeAddress(self.Addr(), host)
	if err != nil {
		return "", err
	}
	return netip.AddrPortFrom(addr, port).String(), nil
}

// resolvePeers resolves every peer; an address equal to self is dropped.
func resolvePeers(self netip.AddrPort, peers []string) ([]string, error) {
	var out []string
	var errs []error
	for _, p := range peers {
		addr, err := resolvePeer(self, p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if addr != self.String() {
			out = append(out, addr)
		}
	}
	return out, errors.Join(errs...)
}

// localSubnet returns the network of the interface owning self, which is
// the range a shortened peer address can reach.
func localSubnet(self netip.Addr) (netip.Prefix, error) {
	if !self.IsValid() || self.IsUnspecified() {
		return netip.Prefix{}, fmt.Errorf("no subnet for unspecified address %v", self)
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return netip.Prefix{}, err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipnet.IP)
		if !ok {
			continue
		}
		ones, _ := ipnet.Mask.Size()
		prefix := netip.PrefixFrom(ip.Unmap(), ones)
		if prefix.IsValid() && prefix.Contains(self) {
			return prefix.Masked(), nil
		}
	}
	return netip.Prefix{}, fmt.Errorf("no interface owns %v", self)
}

func listenerAddr(l net.Listener) (netip.AddrPort, error) {
	ap, err := netip.ParseAddrPort(l.Addr().String())
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}
