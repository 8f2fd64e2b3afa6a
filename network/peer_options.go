package network

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/http"
	"time"
)

type PeerOption func(Peer) Peer

// NewPeerWithOptions builds a peer without starting it; call Start once a
// listener is available.
func NewPeerWithOptions(rank int, addresses map[int]string, opts ...PeerOption) *Peer {
	handler := &broadcastHandler{
		contentChannel: make(chan []byte),
		errChannel:     make(chan error),
	}
	p := Peer{
		Rank:      rank,
		Addresses: copyMap(addresses),
		server:    &http.Server{Addr: addresses[rank], Handler: handler},
		handler:   handler,
		client:    &http.Client{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		p = opt(p)
	}
	if p.tlsConfig != nil {
		p.client.Transport = &http.Transport{TLSClientConfig: p.tlsConfig}
	}
	p.client.Timeout = p.timeout
	return &p
}

func WithTimeout(timeout time.Duration) PeerOption {
	return func(p Peer) Peer {
		p.timeout = timeout
		return p
	}
}

// WithCertificate makes the peer serve and dial over TLS with cert.
func WithCertificate(cert tls.Certificate) PeerOption {
	return func(p Peer) Peer {
		if p.tlsConfig == nil {
			p.tlsConfig = &tls.Config{}
		}
		p.tlsConfig.Certificates = append(p.tlsConfig.Certificates, cert)
		return p
	}
}

// WithLimitedCAs trusts only the certificates in certPool, both for the
// peers we dial and for the clients dialing us.
func WithLimitedCAs(certPool *x509.CertPool) PeerOption {
	return func(p Peer) Peer {
		if p.tlsConfig == nil {
			p.tlsConfig = &tls.Config{}
		}
		p.tlsConfig.RootCAs = certPool
		p.tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		p.tlsConfig.ClientCAs = certPool
		return p
	}
}

func WithLogger(logger *slog.Logger) PeerOption {
	return func(p Peer) Peer {
		p.logger = logger
		return p
	}
}
