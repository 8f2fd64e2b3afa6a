package lottery

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config holds the economic parameters of a pool.
type Config struct {
	// EmissionRate is the reward-token accrual per second.
	EmissionRate   Amount
	TriggerFee     Amount
	KeepWinningFee Amount
	// IgnoreTokenCap bounds how many skip credits can stack; 0 is unlimited.
	IgnoreTokenCap uint64
}

// Pool is the trigger state machine. It exclusively owns the pool state
// and applies one action at a time; every action either commits all of its
// effects or fails without touching anything.
type Pool struct {
	mu         sync.Mutex
	cfg        Config
	registry   *Registry
	selector   Selector
	harvest    *HarvestScheduler
	ignore     *IgnoreTokenLedger
	winner     *Player
	burned     Amount
	harvested  Amount
	// Unix second of the latest committed action
	lastAction int64

	clock  Clock
	rng    RandomSource
	logger *slog.Logger
}

type Option func(*Pool)

func WithClock(c Clock) Option {
	return func(p *Pool) { p.clock = c }
}

func WithRandomSource(rng RandomSource) Option {
	return func(p *Pool) { p.rng = rng }
}

func WithPolicy(policy Policy) Option {
	return func(p *Pool) { p.selector = NewSelector(policy) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates an empty pool whose accrual clock starts now.
func NewPool(cfg Config, opts ...Option) *Pool {
	p := &Pool{
		cfg:      cfg,
		registry: NewRegistry(),
		selector: NewSelector(UniformPolicy{}),
		ignore:   NewIgnoreTokenLedger(cfg.IgnoreTokenCap),
		clock:    SystemClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = NewEntropySource()
	}
	p.harvest = NewHarvestScheduler(cfg.EmissionRate, p.clock.Now())
	return p
}

// EnterPool registers player after its channel opened. JoinedAt defaults
// to the pool clock.
func (p *Pool) EnterPool(player Player) (Outcome, error) {
	now := p.clock.Now()
	if player.JoinedAt.IsZero() {
		player.JoinedAt = now
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commit(Action{Type: ActionEnter, PlayerID: player.ID, FlowRate: player.FlowRate}, now, func(out *Outcome) error {
		return p.enter(player, p.rng, out)
	})
}

// LeavePool handles a channel-close notification.
func (p *Pool) LeavePool(id PlayerID) (Outcome, error) {
	return p.Apply(Action{Type: ActionLeave, PlayerID: id}, p.clock.Now(), p.rng)
}

// TriggerEvent harvests and burns the accrued reward, then either spends an
// ignore token or redraws the winner.
func (p *Pool) TriggerEvent(caller PlayerID) (Outcome, error) {
	return p.Apply(Action{Type: ActionTrigger, PlayerID: caller}, p.clock.Now(), p.rng)
}

// KeepWinning buys the current winner one skip-redraw credit.
func (p *Pool) KeepWinning(caller PlayerID) (Outcome, error) {
	return p.Apply(Action{Type: ActionKeepWinning, PlayerID: caller}, p.clock.Now(), p.rng)
}

// Apply runs a at time now drawing from rng. Replicas call it with the
// action's own timestamp and a seeded source so that they agree.
func (p *Pool) Apply(a Action, now time.Time, rng RandomSource) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commit(a, now, func(out *Outcome) error {
		switch a.Type {
		case ActionEnter:
			return p.enter(Player{ID: a.PlayerID, JoinedAt: now.UTC(), FlowRate: a.FlowRate}, rng, out)
		case ActionLeave:
			return p.leave(a.PlayerID, rng, out)
		case ActionTrigger:
			return p.trigger(a.PlayerID, now, rng, out)
		case ActionKeepWinning:
			return p.keepWinning(a.PlayerID, out)
		default:
			return fmt.Errorf("%w %q", ErrUnknownAction, a.Type)
		}
	})
}

// Check reports whether a would be accepted in the current state without
// applying it.
func (p *Pool) Check(a Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.check(a)
}

func (p *Pool) check(a Action) error {
	switch a.Type {
	case ActionEnter:
		if p.registry.Contains(a.PlayerID) {
			return fmt.Errorf("enter pool %s: %w", a.PlayerID, ErrAlreadyMember)
		}
	case ActionLeave:
		if !p.registry.Contains(a.PlayerID) {
			return fmt.Errorf("leave pool %s: %w", a.PlayerID, ErrNotMember)
		}
	case ActionTrigger:
		if !p.registry.Contains(a.PlayerID) {
			return fmt.Errorf("trigger event by %s: %w", a.PlayerID, ErrNotMember)
		}
	case ActionKeepWinning:
		if p.winner == nil || p.winner.ID != a.PlayerID {
			return fmt.Errorf("keep winning by %s: %w", a.PlayerID, ErrNotCurrentWinner)
		}
		if p.cfg.IgnoreTokenCap > 0 && p.ignore.Count() >= p.cfg.IgnoreTokenCap {
			return fmt.Errorf("keep winning by %s: %w", a.PlayerID, ErrIgnoreTokenCap)
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, a.Type)
	}
	return nil
}

// commit validates a, runs the transition at now and fills in the outcome.
// The transitions only fail on preconditions, before any mutation.
func (p *Pool) commit(a Action, now time.Time, transition func(*Outcome) error) (Outcome, error) {
	if err := p.check(a); err != nil {
		p.logger.Debug("action rejected", "action", a.Type, "player", a.PlayerID, "error", err)
		return Outcome{}, err
	}
	out := Outcome{
		Action:         a.Type,
		PlayerID:       a.PlayerID,
		PreviousWinner: p.winnerID(),
	}
	if err := transition(&out); err != nil {
		return Outcome{}, err
	}
	out.Winner = p.winnerID()
	out.IgnoreTokens = p.ignore.Count()
	if sec := now.Unix(); sec > p.lastAction {
		p.lastAction = sec
	}
	p.logger.Debug("action committed",
		"action", a.Type,
		"player", a.PlayerID,
		"previous_winner", out.PreviousWinner,
		"winner", out.Winner,
		"redrawn", out.Redrawn,
		"skipped", out.Skipped,
		"harvested", out.Harvested.String(),
		"burned", out.Burned.String(),
		"ignore_tokens", out.IgnoreTokens,
	)
	return out, nil
}

func (p *Pool) enter(player Player, rng RandomSource, out *Outcome) error {
	if err := p.registry.Join(player); err != nil {
		return err
	}
	p.redraw(rng, out)
	return nil
}

func (p *Pool) leave(id PlayerID, rng RandomSource, out *Outcome) error {
	if _, err := p.registry.Leave(id); err != nil {
		return err
	}
	if p.winner != nil && p.winner.ID == id {
		p.redraw(rng, out)
	}
	return nil
}

func (p *Pool) trigger(caller PlayerID, now time.Time, rng RandomSource, out *Outcome) error {
	if !p.registry.Contains(caller) {
		return fmt.Errorf("trigger event by %s: %w", caller, ErrNotMember)
	}
	harvested := p.harvest.Harvest(now)
	out.Harvested = harvested
	p.harvested = p.harvested.Add(harvested)
	p.burn(harvested.Add(p.cfg.TriggerFee), out)
	if p.ignore.ConsumeIfAvailable() {
		out.Skipped = true
		return nil
	}
	p.redraw(rng, out)
	return nil
}

func (p *Pool) keepWinning(caller PlayerID, out *Outcome) error {
	if err := p.ignore.Grant(caller, p.winner); err != nil {
		return err
	}
	p.burn(p.cfg.KeepWinningFee, out)
	return nil
}

func (p *Pool) burn(amount Amount, out *Outcome) {
	p.burned = p.burned.Add(amount)
	out.Burned = out.Burned.Add(amount)
}

// redraw picks a new winner over the current members. Ignore tokens are
// dropped whenever the title changes hands.
func (p *Pool) redraw(rng RandomSource, out *Outcome) {
	previous := p.winnerID()
	next, ok := p.selector.Draw(p.registry.Players(), rng)
	if ok {
		p.winner = &next
	} else {
		p.winner = nil
	}
	out.Redrawn = true
	if p.winnerID() != previous {
		p.ignore.Reset()
	}
}

func (p *Pool) winnerID() PlayerID {
	if p.winner == nil {
		return ""
	}
	return p.winner.ID
}

func (p *Pool) CurrentWinner() (Player, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.winner == nil {
		return Player{}, false
	}
	return *p.winner, true
}

// Accrued returns the reward that a harvest at now would collect.
func (p *Pool) Accrued(now time.Time) Amount {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.harvest.Accrued(now)
}

func (p *Pool) IgnoreTokens() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ignore.Count()
}

func (p *Pool) TotalBurned() Amount {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.burned
}

func (p *Pool) TotalHarvested() Amount {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.harvested
}

func (p *Pool) LastHarvest() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Unix(p.harvest.LastHarvest(), 0)
}

// LastAction is the time of the latest committed action, or of the last
// harvest when that is later.
func (p *Pool) LastAction() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Unix(max(p.lastAction, p.harvest.LastHarvest()), 0).UTC()
}

func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.winner == nil {
		return StateEmpty
	}
	return StateActive
}

func (p *Pool) Players() []Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registry.Players()
}

func (p *Pool) Config() Config {
	return p.cfg
}

// Snapshot copies the pool state.
func (p *Pool) Snapshot() PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := PoolState{
		ActivePlayers:        p.registry.Players(),
		LastHarvestTimestamp: p.harvest.LastHarvest(),
		LastActionTimestamp:  p.lastAction,
		IgnoreTokenCount:     p.ignore.Count(),
		TotalBurned:          p.burned,
		TotalHarvested:       p.harvested,
	}
	if p.winner != nil {
		w := *p.winner
		s.CurrentWinner = &w
	}
	return s
}

// Restore replaces the pool state with s after checking its invariants.
func (p *Pool) Restore(s PoolState) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("restore pool: %w", err)
	}
	registry := NewRegistry()
	for _, player := range s.ActivePlayers {
		if err := registry.Join(player); err != nil {
			return fmt.Errorf("restore pool: %w", err)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registry = registry
	p.winner = nil
	if s.CurrentWinner != nil {
		w, _ := registry.Get(s.CurrentWinner.ID)
		p.winner = &w
	}
	p.harvest = &HarvestScheduler{rate: p.cfg.EmissionRate, last: s.LastHarvestTimestamp}
	p.ignore = NewIgnoreTokenLedger(p.cfg.IgnoreTokenCap)
	p.ignore.count = s.IgnoreTokenCount
	p.burned = s.TotalBurned
	p.harvested = s.TotalHarvested
	p.lastAction = s.LastActionTimestamp
	return nil
}
