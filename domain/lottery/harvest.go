package lottery

import "time"

// Clock supplies the current wall-clock time.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Accrued is the reward emitted between last and now (Unix seconds) at
// rate tokens per second. It is zero when now is not after last.
func Accrued(now, last int64, rate Amount) Amount {
	if now <= last {
		return Amount{}
	}
	return rate.MulUint64(uint64(now - last))
}

// HarvestScheduler tracks reward-token accrual since the last harvest.
type HarvestScheduler struct {
	rate Amount
	last int64
}

func NewHarvestScheduler(rate Amount, start time.Time) *HarvestScheduler {
	return &HarvestScheduler{rate: rate, last: start.Unix()}
}

func (h *HarvestScheduler) Rate() Amount { return h.rate }

func (h *HarvestScheduler) LastHarvest() int64 { return h.last }

func (h *HarvestScheduler) Accrued(now time.Time) Amount {
	return Accrued(now.Unix(), h.last, h.rate)
}

// Harvest returns what has accrued and restarts accrual from now. The
// timestamp never moves backwards, so a stale now harvests zero.
func (h *HarvestScheduler) Harvest(now time.Time) Amount {
	sec := now.Unix()
	amount := Accrued(sec, h.last, h.rate)
	if sec > h.last {
		h.last = sec
	}
	return amount
}
