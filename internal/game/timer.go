package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown ticks a per-question timer down once per second and fires an
// expiry callback exactly once when it reaches zero. Pausing freezes the
// remaining time without resetting it; only Reset re-arms the countdown.
type Countdown struct {
	clock    clockwork.Clock
	onExpire func()

	mu        sync.Mutex
	duration  int
	remaining int
	active    bool
	expired   bool

	done     chan struct{}
	stopOnce sync.Once
}

// NewCountdown creates an idle countdown and starts its tick loop. Call Stop
// when the countdown is no longer needed to release the loop.
func NewCountdown(clock clockwork.Clock, onExpire func()) *Countdown {
	c := &Countdown{
		clock:    clock,
		onExpire: onExpire,
		done:     make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Countdown) run() {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.tick()
		case <-c.done:
			return
		}
	}
}

// tick advances the countdown by one second while active.
func (c *Countdown) tick() {
	c.mu.Lock()
	if !c.active || c.expired || c.remaining <= 0 {
		c.mu.Unlock()
		return
	}
	c.remaining--
	var fire func()
	if c.remaining == 0 {
		c.expired = true
		c.active = false
		fire = c.onExpire
	}
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// Reset arms the countdown for a fresh duration and activates it.
func (c *Countdown) Reset(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = seconds
	c.remaining = seconds
	c.expired = false
	c.active = true
}

// Pause freezes the remaining time. A paused countdown never expires.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
}

// Resume continues from the frozen value. No-op once expired.
func (c *Countdown) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expired {
		return
	}
	c.active = true
}

// TimeLeft returns the remaining whole seconds; never negative.
func (c *Countdown) TimeLeft() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stop terminates the tick loop. The countdown cannot be reused afterwards.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
