// Package clock decides whether an upkeep is due. Reads have no side effects;
// the timestamp moves only through Arm and MarkActed.
package clock

import (
	"time"

	"github.com/holiman/uint256"

	xerrors "DCAKeeper/internal/errors"
	"DCAKeeper/internal/model"
)

// Clock holds the configured interval and the last action timestamp in unix
// seconds. A zero timestamp means the clock has never been armed.
type Clock struct {
	interval time.Duration
	last     int64
}

// New returns a clock with the given interval and last timestamp.
func New(interval time.Duration, last int64) *Clock {
	return &Clock{interval: interval, last: last}
}

// Interval returns the configured interval.
func (c *Clock) Interval() time.Duration { return c.interval }

// LastTimestamp returns the last action timestamp in unix seconds.
func (c *Clock) LastTimestamp() int64 { return c.last }

// SetInterval replaces the interval. It takes effect on the next evaluation.
func (c *Clock) SetInterval(d time.Duration) error {
	if d < 0 {
		return xerrors.Newf(xerrors.CodeInvalidAmount, "interval %s is negative", d)
	}
	c.interval = d
	return nil
}

// Elapsed reports whether at least one interval has passed since the last
// timestamp.
func (c *Clock) Elapsed(now time.Time) bool {
	delta := now.Unix() - c.last
	if delta < 0 {
		return false
	}
	return time.Duration(delta)*time.Second >= c.interval
}

// Evaluate derives the upkeep state. An engine without funds is never due.
func (c *Clock) Evaluate(now time.Time, funds *uint256.Int) model.UpkeepState {
	if funds == nil || funds.IsZero() {
		return model.StateIdle
	}
	if !c.Elapsed(now) {
		return model.StateIdle
	}
	return model.StateDue
}

// IsDue is Evaluate(now, funds) == StateDue.
func (c *Clock) IsDue(now time.Time, funds *uint256.Int) bool {
	return c.Evaluate(now, funds) == model.StateDue
}

// Arm starts the first interval at now if the clock was never armed.
func (c *Clock) Arm(now time.Time) {
	if c.last == 0 {
		c.last = now.Unix()
	}
}

// MarkActed records a completed upkeep. The timestamp never moves backwards.
func (c *Clock) MarkActed(now time.Time) error {
	ts := now.Unix()
	if ts < c.last {
		return xerrors.Newf(xerrors.CodeUpkeepNotNeeded, "action time %d precedes last timestamp %d", ts, c.last)
	}
	c.last = ts
	return nil
}

// Clone returns a copy.
func (c *Clock) Clone() *Clock {
	cp := *c
	return &cp
}
