package lottery

import (
	"fmt"
	"time"
)

// LotteryManager adapts a Pool to the consensus StateManager interface and
// builds the actions of the local player.
type LotteryManager struct {
	Pool            *Pool
	Player          PlayerID
	MinimumFlowRate Amount
	Clock           Clock
	// MaxClockSkew is how far ahead of Clock an incoming action may be
	// stamped before Validate refuses it.
	MaxClockSkew time.Duration
}

const DefaultMaxClockSkew = 30 * time.Second

// NewLotteryManager wraps pool for the local player. Actions built by the
// manager are stamped with the system clock.
func NewLotteryManager(pool *Pool, player PlayerID, minimumFlowRate Amount) *LotteryManager {
	return &LotteryManager{
		Pool:            pool,
		Player:          player,
		MinimumFlowRate: minimumFlowRate,
		Clock:           SystemClock{},
		MaxClockSkew:    DefaultMaxClockSkew,
	}
}

// Validate checks whether a would be accepted by the pool. On top of the
// checks Apply repeats, it refuses actions stamped further ahead of the
// local clock than MaxClockSkew, since their timestamp drives the harvest.
func (lm *LotteryManager) Validate(a Action) error {
	if limit := lm.now() + int64(lm.MaxClockSkew/time.Second); a.Timestamp > limit {
		return fmt.Errorf("%s by %s at %d: %w (local clock %d)", a.Type, a.PlayerID, a.Timestamp, ErrFutureAction, lm.now())
	}
	return lm.check(a)
}

// check holds the validations every replica evaluates identically.
// Entering with a flow rate below the minimum is rejected here, since the
// pool itself assumes the channel ledger already enforced it.
func (lm *LotteryManager) check(a Action) error {
	if last := lm.Pool.LastAction(); a.Time().Before(last) {
		return fmt.Errorf("%s by %s at %d: %w (last at %d)", a.Type, a.PlayerID, a.Timestamp, ErrStaleAction, last.Unix())
	}
	if a.Type == ActionEnter && a.FlowRate.Cmp(lm.MinimumFlowRate) < 0 {
		return fmt.Errorf("enter pool %s with rate %s: %w (minimum %s)", a.PlayerID, a.FlowRate, ErrFlowRateTooLow, lm.MinimumFlowRate)
	}
	return lm.Pool.Check(a)
}

// Apply commits a at its own timestamp, drawing from a source seeded with
// seed. Every replica applying the same action with the same seed reaches
// the same state, so the clock bound of Validate is not repeated here.
func (lm *LotteryManager) Apply(a Action, seed []byte) (Outcome, error) {
	if err := lm.check(a); err != nil {
		return Outcome{}, err
	}
	return lm.Pool.Apply(a, a.Time(), NewSeededSource(seed))
}

func (lm *LotteryManager) Snapshot() PoolState {
	return lm.Pool.Snapshot()
}

func (lm *LotteryManager) Restore(s PoolState) error {
	return lm.Pool.Restore(s)
}

func (lm *LotteryManager) now() int64 {
	if lm.Clock == nil {
		return time.Now().Unix()
	}
	return lm.Clock.Now().Unix()
}

func (lm *LotteryManager) ActionEnter(flowRate Amount) Action {
	return Action{Type: ActionEnter, PlayerID: lm.Player, FlowRate: flowRate, Timestamp: lm.now()}
}

func (lm *LotteryManager) ActionLeave() Action {
	return Action{Type: ActionLeave, PlayerID: lm.Player, Timestamp: lm.now()}
}

func (lm *LotteryManager) ActionTrigger() Action {
	return Action{Type: ActionTrigger, PlayerID: lm.Player, Timestamp: lm.now()}
}

func (lm *LotteryManager) ActionKeepWinning() Action {
	return Action{Type: ActionKeepWinning, PlayerID: lm.Player, Timestamp: lm.now()}
}

// LocalPlayer is the player this manager builds actions for.
func (lm *LotteryManager) LocalPlayer() PlayerID {
	return lm.Player
}
