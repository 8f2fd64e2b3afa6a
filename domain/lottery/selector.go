package lottery

import "fmt"

// RandomSource supplies the entropy consumed by a draw.
type RandomSource interface {
	// Uint64n returns a uniformly distributed value in [0, n). n is never 0.
	Uint64n(n uint64) uint64
}

// Policy picks the index of the winner among two or more players.
type Policy interface {
	Pick(players []Player, rng RandomSource) int
}

// Selector performs the winner draw over the active players.
type Selector struct {
	policy Policy
}

func NewSelector(policy Policy) Selector {
	if policy == nil {
		policy = UniformPolicy{}
	}
	return Selector{policy: policy}
}

// Draw returns false when there are no players. A single player wins
// without consuming randomness; otherwise the policy decides.
func (s Selector) Draw(players []Player, rng RandomSource) (Player, bool) {
	switch len(players) {
	case 0:
		return Player{}, false
	case 1:
		return players[0], true
	}
	return players[s.policy.Pick(players, rng)], true
}

// UniformPolicy gives every active player the same chance.
type UniformPolicy struct{}

func (UniformPolicy) Pick(players []Player, rng RandomSource) int {
	return int(rng.Uint64n(uint64(len(players))))
}

// WeightedPolicy draws proportionally to each player's flow rate. When all
// rates are zero it falls back to a uniform draw.
type WeightedPolicy struct{}

func (WeightedPolicy) Pick(players []Player, rng RandomSource) int {
	total := Amount{}
	for _, p := range players {
		total = total.Add(p.FlowRate)
	}
	// keep the sum of the reduced weights below 2^63
	var shift uint
	if bl := total.bitLen(); bl > 62 {
		shift = uint(bl - 62)
	}
	weights := make([]uint64, len(players))
	var sum uint64
	for i, p := range players {
		weights[i] = p.FlowRate.weight(shift)
		sum += weights[i]
	}
	if sum == 0 {
		return UniformPolicy{}.Pick(players, rng)
	}
	r := rng.Uint64n(sum)
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(players) - 1
}

const (
	PolicyUniform  = "uniform"
	PolicyWeighted = "weighted"
)

// PolicyByName resolves the selection policy named in configuration.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyUniform:
		return UniformPolicy{}, nil
	case PolicyWeighted:
		return WeightedPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown selection policy %q", name)
	}
}
