// Package countdown mirrors the server's remaining payment time on the
// client side. It has no authority: reaching zero only changes the message
// shown and invokes the caller's callback. It never cancels an order and
// the server's figure always replaces the local one on sync.
package countdown

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MinResyncInterval is the shortest gap between two periodic syncs.
const MinResyncInterval = 5 * time.Second

const (
	MessageRunning = "Completa tu pago antes de que termine el tiempo"
	MessageExpired = "¡Completa tu pago cuanto antes y envía tu comprobante por WhatsApp para asegurar tus boletos!"
)

// Source reports the server's remaining seconds for the order.
type Source interface {
	RemainingSeconds(ctx context.Context) (int64, error)
}

type SourceFunc func(ctx context.Context) (int64, error)

func (f SourceFunc) RemainingSeconds(ctx context.Context) (int64, error) { return f(ctx) }

type Countdown struct {
	mu        sync.Mutex
	remaining int64
	lastSync  time.Time
	fired     bool
	now       func() time.Time
	onExpire  func()
}

// New starts a countdown at the server-reported remaining seconds. onExpire
// may be nil.
func New(remainingSeconds int64, now func() time.Time, onExpire func()) *Countdown {
	if now == nil {
		now = time.Now
	}
	if remainingSeconds < 0 {
		remainingSeconds = 0
	}
	return &Countdown{
		remaining: remainingSeconds,
		lastSync:  now(),
		fired:     remainingSeconds == 0,
		now:       now,
		onExpire:  onExpire,
	}
}

// Tick advances the local countdown by one second. The callback runs once,
// on the tick that reaches zero.
func (c *Countdown) Tick() {
	c.mu.Lock()
	if c.remaining > 0 {
		c.remaining--
	}
	fire := c.remaining == 0 && !c.fired
	if fire {
		c.fired = true
	}
	cb := c.onExpire
	c.mu.Unlock()

	if fire && cb != nil {
		cb()
	}
}

// Sync replaces the local value with the server's. Periodic syncs closer
// than MinResyncInterval to the previous one are ignored; force is for
// syncs driven by a fresh order query and always applies.
func (c *Countdown) Sync(serverRemaining int64, force bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !force && now.Sub(c.lastSync) < MinResyncInterval {
		return false
	}
	if serverRemaining < 0 {
		serverRemaining = 0
	}
	c.remaining = serverRemaining
	c.lastSync = now
	if serverRemaining > 0 {
		c.fired = false
	}
	return true
}

func (c *Countdown) Remaining() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Expired() bool {
	return c.Remaining() == 0
}

func (c *Countdown) Message() string {
	if c.Expired() {
		return MessageExpired
	}
	return MessageRunning
}

// Display renders the remaining time as MM:SS.
func (c *Countdown) Display() string {
	return FormatRemaining(c.Remaining())
}

// Run ticks once per second and pulls from source every resync interval
// until ctx is done. Source errors keep the local value.
func (c *Countdown) Run(ctx context.Context, source Source, resync time.Duration) {
	if resync < MinResyncInterval {
		resync = MinResyncInterval
	}

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	poll := time.NewTicker(resync)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			c.Tick()
		case <-poll.C:
			if source == nil {
				continue
			}
			if remaining, err := source.RemainingSeconds(ctx); err == nil {
				c.Sync(remaining, false)
			}
		}
	}
}

func FormatRemaining(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// View is what the order status endpoint hands the client to seed its
// countdown.
type View struct {
	RemainingSeconds   int64  `json:"remaining_seconds"`
	Display            string `json:"display"`
	Message            string `json:"message"`
	ResyncAfterSeconds int64  `json:"resync_after_seconds"`
}

func NewView(remainingSeconds int64) View {
	c := New(remainingSeconds, nil, nil)
	return View{
		RemainingSeconds:   c.Remaining(),
		Display:            c.Display(),
		Message:            c.Message(),
		ResyncAfterSeconds: int64(MinResyncInterval / time.Second),
	}
}
