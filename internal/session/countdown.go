package session

import "time"

// LowTimeThreshold is the remaining time at which the one-time warning fires.
const LowTimeThreshold = 60 * time.Second

// TickResult describes the countdown after one tick.
type TickResult struct {
	Remaining time.Duration
	LowTime   bool
	Expired   bool
}

// Countdown owns the remaining time of a session. It is not safe for
// concurrent use; the Machine serializes access.
type Countdown struct {
	remaining time.Duration
	warned    bool
	expired   bool
}

// NewCountdown arms a countdown for the given duration.
func NewCountdown(minutes, seconds int) *Countdown {
	d := time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	return newCountdown(d)
}

func newCountdown(d time.Duration) *Countdown {
	if d < 0 {
		d = 0
	}
	return &Countdown{remaining: d.Truncate(time.Second)}
}

// Tick removes one second. Expired is reported exactly once; ticks after
// expiry change nothing.
func (c *Countdown) Tick() TickResult {
	if c.expired {
		return TickResult{}
	}
	if c.remaining > 0 {
		c.remaining -= time.Second
	}
	res := TickResult{Remaining: c.remaining}
	if !c.warned && c.remaining == LowTimeThreshold {
		c.warned = true
		res.LowTime = true
	}
	if c.remaining <= 0 {
		c.expired = true
		res.Expired = true
	}
	return res
}

// Remaining returns the time left.
func (c *Countdown) Remaining() time.Duration {
	return c.remaining
}

// Expired reports whether expiry has been signalled.
func (c *Countdown) Expired() bool {
	return c.expired
}

// Clock splits a duration into minutes and seconds for display.
type Clock struct {
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// ClockOf converts d to a Clock.
func ClockOf(d time.Duration) Clock {
	total := int(d / time.Second)
	return Clock{Minutes: total / 60, Seconds: total % 60}
}
