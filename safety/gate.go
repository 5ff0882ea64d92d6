// Package safety gates outbound replies: quiet hours, a sliding-window
// global rate limit, and per-contact cooldowns. State lives only for the
// process lifetime.
package safety

import (
	"sync"
	"time"
)

type Reason string

const (
	ReasonQuietHours  Reason = "quiet-hours"
	ReasonRateLimited Reason = "rate-limited"
	ReasonCooldown    Reason = "cooldown-active"
)

const rateWindow = time.Hour

type QuietHours struct {
	Enabled   bool
	StartHour int // [0,23]
	EndHour   int // [0,23]; interval wraps past midnight when start > end
}

type Config struct {
	MaxRepliesPerHour int
	DefaultCooldown   time.Duration
	QuietHours        QuietHours
}

type Result struct {
	Allowed bool
	Reason  Reason // set when not allowed
}

type contactState struct {
	lastReply time.Time
	hasReply  bool
}

// Gate evaluates the three safety checks in a fixed order: quiet hours,
// rate limit, cooldown. Quiet hours dominate regardless of other state.
// Evaluate is read-only; RecordSend is the only mutation and must be called
// only after a send was actually dispatched.
type Gate struct {
	cfg Config

	mu       sync.Mutex
	window   []time.Time // reply timestamps within the trailing hour
	contacts map[string]*contactState
}

func NewGate(cfg Config) *Gate {
	if cfg.MaxRepliesPerHour <= 0 {
		cfg.MaxRepliesPerHour = 30
	}
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = 60 * time.Second
	}
	return &Gate{
		cfg:      cfg,
		contacts: map[string]*contactState{},
	}
}

// Evaluate reports whether a reply to contactID is allowed at now.
// cooldownOverride, when non-nil, replaces the global default for this
// contact only.
func (g *Gate) Evaluate(contactID string, now time.Time, cooldownOverride *time.Duration) Result {
	if g.cfg.QuietHours.Enabled && inQuietHours(g.cfg.QuietHours, now) {
		return Result{Reason: ReasonQuietHours}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneWindowLocked(now)
	if len(g.window) >= g.cfg.MaxRepliesPerHour {
		return Result{Reason: ReasonRateLimited}
	}

	if state, ok := g.contacts[contactID]; ok && state.hasReply {
		cooldown := g.cfg.DefaultCooldown
		if cooldownOverride != nil {
			cooldown = *cooldownOverride
		}
		if now.Sub(state.lastReply) < cooldown {
			return Result{Reason: ReasonCooldown}
		}
	}

	return Result{Allowed: true}
}

// RecordSend appends now to the rolling window and stamps the contact's last
// reply. Callers must invoke this only after a send was issued, never
// speculatively: suppressed turns leave the state untouched.
func (g *Gate) RecordSend(contactID string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneWindowLocked(now)
	g.window = append(g.window, now)

	state, ok := g.contacts[contactID]
	if !ok {
		state = &contactState{}
		g.contacts[contactID] = state
	}
	state.lastReply = now
	state.hasReply = true
}

// Remaining reports how many replies are left in the current window.
func (g *Gate) Remaining(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneWindowLocked(now)
	remaining := g.cfg.MaxRepliesPerHour - len(g.window)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (g *Gate) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	idx := 0
	for idx < len(g.window) && !g.window[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		g.window = append(g.window[:0], g.window[idx:]...)
	}
}

func inQuietHours(q QuietHours, now time.Time) bool {
	hour := now.Hour()
	if q.StartHour <= q.EndHour {
		return hour >= q.StartHour && hour < q.EndHour
	}
	// Overnight range, e.g. 22..6 covers hours 22,23,0..5.
	return hour >= q.StartHour || hour < q.EndHour
}
