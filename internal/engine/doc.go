// Package engine implements the alarm state machine as a single-goroutine
// actor. The clock-tick evaluator, motion samples, playback notifications
// and external commands all funnel into one command loop, so engine state
// has exactly one mutating goroutine and needs no fine-grained locking.
//
// Which schedule is due is re-derived from {current time, schedule set} on
// every tick instead of accumulated, so the engine tolerates clock jumps,
// sleep/wake and missed ticks.
package engine
