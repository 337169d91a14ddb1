package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// alertCooldownWindow is the sliding window inside which only one
// system-error apology per chat may be sent.
const alertCooldownWindow = 15 * time.Second

// alertCooldown is a process-level, in-memory sliding-window suppressor
// keyed by chat id.
type alertCooldown struct {
	mu   sync.Mutex
	last map[uuid.UUID]time.Time
}

func newAlertCooldown() *alertCooldown {
	return &alertCooldown{last: make(map[uuid.UUID]time.Time)}
}

// allow reports whether a system-error apology may be sent for chatID now,
// and if so records the attempt so the next call within the window is
// suppressed.
func (c *alertCooldown) allow(chatID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if last, ok := c.last[chatID]; ok && now.Sub(last) < alertCooldownWindow {
		return false
	}
	c.last[chatID] = now
	return true
}
