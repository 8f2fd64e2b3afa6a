package lottery

import (
	"crypto/cipher"
	"crypto/sha256"
	"math/big"

	"go.dedis.ch/kyber/v4/suites"
	"go.dedis.ch/kyber/v4/util/random"
)

var suite suites.Suite = suites.MustFind("Ed25519")

// StreamSource turns a kyber cipher stream into a RandomSource.
type StreamSource struct {
	stream cipher.Stream
}

// NewEntropySource reads from the suite's system-backed random stream.
func NewEntropySource() *StreamSource {
	return &StreamSource{stream: suite.RandomStream()}
}

// NewSeededSource is deterministic: the same seed always produces the same
// sequence of draws. Replicas use it to agree on winners.
func NewSeededSource(seed []byte) *StreamSource {
	return &StreamSource{stream: suite.XOF(seed)}
}

func NewStreamSource(stream cipher.Stream) *StreamSource {
	return &StreamSource{stream: stream}
}

func (s *StreamSource) Uint64n(n uint64) uint64 {
	if n <= 1 {
		return 0
	}
	// random.Int only yields values in [1, mod), so draw from [1, n] and shift
	mod := new(big.Int).SetUint64(n)
	mod.Add(mod, big.NewInt(1))
	return random.Int(mod, s.stream).Uint64() - 1
}

// DeriveSeed hashes the given parts into a 32 byte seed.
func DeriveSeed(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
