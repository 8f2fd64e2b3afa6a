package lottery

import "fmt"

// IgnoreTokenLedger counts the skip-redraw credits held by the current
// winner. A cap of 0 means tokens stack without limit.
type IgnoreTokenLedger struct {
	count uint64
	limit uint64
}

func NewIgnoreTokenLedger(limit uint64) *IgnoreTokenLedger {
	return &IgnoreTokenLedger{limit: limit}
}

// Grant gives one more token to caller, who must be the current winner.
func (l *IgnoreTokenLedger) Grant(caller PlayerID, winner *Player) error {
	if winner == nil || winner.ID != caller {
		return fmt.Errorf("grant ignore token to %s: %w", caller, ErrNotCurrentWinner)
	}
	if l.limit > 0 && l.count >= l.limit {
		return fmt.Errorf("grant ignore token to %s: %w (%d)", caller, ErrIgnoreTokenCap, l.limit)
	}
	l.count++
	return nil
}

// ConsumeIfAvailable spends one token and reports whether the caller must
// skip the redraw.
func (l *IgnoreTokenLedger) ConsumeIfAvailable() bool {
	if l.count == 0 {
		return false
	}
	l.count--
	return true
}

// Reset drops every token; tokens never carry over to a new winner.
func (l *IgnoreTokenLedger) Reset() {
	l.count = 0
}

func (l *IgnoreTokenLedger) Count() uint64 {
	return l.count
}
