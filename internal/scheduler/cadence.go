// SPDX-License-Identifier: MIT

package scheduler

import (
	"math/rand"
	"time"

	"github.com/racecarr/racecarr/internal/model"
)

// gateOffset delays the first search until shortly after the session
// starts; releases never appear before that.
const gateOffset = 30 * time.Minute

type phase int

const (
	phaseTBD        phase = iota // session start unknown
	phaseGate                    // before start + 30 min
	phaseAggressive              // every tick
	phaseDecay                   // every decay_interval_h
	phaseExpired                 // past stop_after_days, terminal
)

func classifyPhase(now time.Time, start *time.Time, s model.Settings) phase {
	if start == nil {
		return phaseTBD
	}
	switch {
	case now.After(start.Add(time.Duration(s.StopAfterDays) * 24 * time.Hour)):
		return phaseExpired
	case now.Before(start.Add(gateOffset)):
		return phaseGate
	case now.Before(start.Add(time.Duration(s.AggressiveWindowH) * time.Hour)):
		return phaseAggressive
	}
	return phaseDecay
}

// nextRunFor computes the raw next run time for a phase. Jitter is
// applied by the caller.
func nextRunFor(p phase, now time.Time, start *time.Time, s model.Settings) time.Time {
	decay := time.Duration(s.DecayIntervalH) * time.Hour
	switch p {
	case phaseTBD:
		return now.Add(decay)
	case phaseGate:
		return start.Add(gateOffset)
	case phaseAggressive:
		return now.Add(time.Duration(s.SchedulerTickSeconds) * time.Second)
	default:
		return now.Add(decay)
	}
}

// jittered spreads t by a uniform offset in [-jitterSeconds, +jitterSeconds]
// so entries sharing a cadence do not hit the indexers together.
func jittered(t time.Time, jitterSeconds int, rng *rand.Rand) time.Time {
	if jitterSeconds <= 0 {
		return t
	}
	span := int64(jitterSeconds) * int64(time.Second)
	return t.Add(time.Duration(rng.Int63n(2*span+1) - span))
}

// cooldown is the retry delay after a transient failure: exponential in
// the attempt count, capped at the decay interval.
func cooldown(attempts int, s model.Settings) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 16 {
		attempts = 16
	}
	d := time.Minute << (attempts - 1)
	if limit := time.Duration(s.DecayIntervalH) * time.Hour; d > limit {
		d = limit
	}
	return d
}
