package lottery

import (
	"fmt"
	"slices"
)

// Registry is the set of players with an open channel, kept in join order.
type Registry struct {
	players []Player
	index   map[PlayerID]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[PlayerID]int)}
}

// Join adds p to the registry. Duplicate notifications from the channel
// ledger are rejected with ErrAlreadyMember.
func (r *Registry) Join(p Player) error {
	if _, ok := r.index[p.ID]; ok {
		return fmt.Errorf("join %s: %w", p.ID, ErrAlreadyMember)
	}
	r.index[p.ID] = len(r.players)
	r.players = append(r.players, p)
	return nil
}

// Leave removes the player and returns it.
func (r *Registry) Leave(id PlayerID) (Player, error) {
	i, ok := r.index[id]
	if !ok {
		return Player{}, fmt.Errorf("leave %s: %w", id, ErrNotMember)
	}
	p := r.players[i]
	r.players = slices.Delete(r.players, i, i+1)
	delete(r.index, id)
	for j := i; j < len(r.players); j++ {
		r.index[r.players[j].ID] = j
	}
	return p, nil
}

func (r *Registry) Contains(id PlayerID) bool {
	_, ok := r.index[id]
	return ok
}

func (r *Registry) Get(id PlayerID) (Player, bool) {
	i, ok := r.index[id]
	if !ok {
		return Player{}, false
	}
	return r.players[i], true
}

func (r *Registry) Len() int {
	return len(r.players)
}

// Players returns a copy of the members in join order.
func (r *Registry) Players() []Player {
	return slices.Clone(r.players)
}
