// Package lottery implements the core of a continuously running lottery in
// which players join by streaming value into a shared pool.
//
// # Core Types
//
// Pool: The trigger state machine. It owns the pool state and applies the
// enter, leave, trigger and keep-winning actions one at a time.
//
// Registry: The set of players with an open channel, in join order.
//
// Selector: Draws the current winner among the active players using a
// pluggable Policy and RandomSource.
//
// HarvestScheduler: Accrues reward tokens linearly with elapsed seconds and
// settles them on every trigger.
//
// IgnoreTokenLedger: Counts the skip-redraw credits bought by the winner.
//
// # Pool States
//
// A pool is Empty when nobody is in it and Active otherwise. A winner is set
// exactly when the pool is Active, and ignore tokens are dropped whenever the
// winner changes through a redraw.
//
// # Replication
//
// LotteryManager exposes the pool to the consensus layer. Replicas apply each
// committed action at the action's timestamp with a RandomSource seeded from
// the ledger, so they all draw the same winner.
package lottery
