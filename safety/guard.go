// Package safety gates every outbound send: per-channel caps with warmup,
// send-time windows, and the do-not-contact lists. Denial is a normal
// outcome recorded by callers as a SKIPPED attempt, never an error.
package safety

import (
	"context"
	"strings"
	"sync"
	"time"

	"leadpilot/models"
	"leadpilot/store"
)

// Decision is the guard verdict for one prospective send.
type Decision struct {
	Allowed bool
	Reason  string // skip reason tag when denied: safety_limit or dnc
	Detail  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason, detail string) Decision {
	return Decision{Allowed: false, Reason: reason, Detail: detail}
}

// Guard evaluates the safety predicates against a settings snapshot shared
// by the campaign's per-lead workers. The only field it mutates is the
// warmup start stamp, guarded by mu; counter reservations happen at send
// time through the UsageStore.
type Guard struct {
	mu       sync.RWMutex
	settings *models.SafetySettings
	usage    UsageStore
	dnc      store.DNCStore
	now      func() time.Time
}

func NewGuard(settings *models.SafetySettings, usage UsageStore, dnc store.DNCStore) *Guard {
	return &Guard{
		settings: settings,
		usage:    usage,
		dnc:      dnc,
		now:      time.Now,
	}
}

// WithClock overrides the guard's clock. Tests only.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Settings returns a consistent copy of the guard's settings for callers
// that persist them, so a concurrent warmup stamp on another channel
// cannot tear the snapshot mid-save.
func (g *Guard) Settings() *models.SafetySettings {
	g.mu.RLock()
	defer g.mu.RUnlock()
	snapshot := *g.settings
	snapshot.ChannelConfigs = append([]models.ChannelConfig(nil), g.settings.ChannelConfigs...)
	return &snapshot
}

// StampWarmupStart records the channel's first send time, anchoring its
// warmup curve at day one. Per-lead workers race to be that first send;
// exactly one caller gets true and is responsible for persisting the
// settings. False means warmup is off, already anchored, or the channel
// is not configured.
func (g *Guard) StampWarmupStart(channel string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	cc := g.ChannelConfig(channel)
	if cc == nil || !cc.WarmupEnabled || cc.WarmupStartedAt != nil {
		return false
	}
	cc.WarmupStartedAt = &now
	return true
}

// ChannelConfig returns the configuration for the channel, or nil when the
// campaign does not configure it.
func (g *Guard) ChannelConfig(channel string) *models.ChannelConfig {
	for i := range g.settings.ChannelConfigs {
		if g.settings.ChannelConfigs[i].Channel == channel {
			return &g.settings.ChannelConfigs[i]
		}
	}
	return nil
}

// CanSendNow reports whether a send on the channel is allowed right now:
// the channel must be enabled, the current time inside the send window,
// and the effective daily count (warmup-adjusted) below its limit.
func (g *Guard) CanSendNow(ctx context.Context, channel string) (Decision, error) {
	cc := g.ChannelConfig(channel)
	if cc == nil || !cc.Enabled {
		return deny(models.SkipReasonSafetyLimit, "channel disabled"), nil
	}

	now := g.now()
	if !g.insideSendWindow(now) {
		return deny(models.SkipReasonSafetyLimit, "outside send window"), nil
	}

	limit := cc.EffectiveDailyLimit(g.warmupDay(cc, now))
	count, err := g.usage.Count(ctx, g.settings.CampaignID, channel, DayBucket(now))
	if err != nil {
		return Decision{}, err
	}
	if count >= limit {
		return deny(models.SkipReasonSafetyLimit, "daily limit reached"), nil
	}

	if cc.HourlyCap > 0 {
		hourly, err := g.usage.Count(ctx, g.settings.CampaignID, channel, HourBucket(now))
		if err != nil {
			return Decision{}, err
		}
		if hourly >= cc.HourlyCap {
			return deny(models.SkipReasonSafetyLimit, "hourly cap reached"), nil
		}
	}

	return allow(), nil
}

// IsContactAllowed reports whether the lead may be contacted at all: false
// when its email or domain is blocked for the campaign or any of email,
// domain, lead id is on the global do-not-contact list.
func (g *Guard) IsContactAllowed(ctx context.Context, lead *models.Lead) (Decision, error) {
	email := strings.ToLower(strings.TrimSpace(lead.Email))
	domain := strings.ToLower(lead.EmailDomain())

	for _, blocked := range g.settings.BlockedEmails {
		if strings.EqualFold(blocked, email) {
			return deny(models.SkipReasonDNC, "email blocked"), nil
		}
	}
	for _, blocked := range g.settings.BlockedDomains {
		if domain != "" && strings.EqualFold(blocked, domain) {
			return deny(models.SkipReasonDNC, "domain blocked"), nil
		}
	}

	blocked, err := g.dnc.IsBlocked(ctx, email, domain, lead.ID)
	if err != nil {
		return Decision{}, err
	}
	if blocked {
		return deny(models.SkipReasonDNC, "on do-not-contact list"), nil
	}
	return allow(), nil
}

// Reserve atomically claims one send slot on the channel for today,
// failing closed when the effective limit is already consumed. Called by
// the sequencer immediately before the provider call.
func (g *Guard) Reserve(ctx context.Context, channel string) (bool, error) {
	cc := g.ChannelConfig(channel)
	if cc == nil {
		return false, nil
	}
	now := g.now()
	limit := cc.EffectiveDailyLimit(g.warmupDay(cc, now))
	ok, err := g.usage.Reserve(ctx, g.settings.CampaignID, channel, DayBucket(now), limit)
	if err != nil || !ok {
		return ok, err
	}
	if cc.HourlyCap > 0 {
		ok, err = g.usage.Reserve(ctx, g.settings.CampaignID, channel, HourBucket(now), cc.HourlyCap)
	}
	return ok, err
}

// warmupDay returns the 1-based day of the warmup curve. The start stamp
// is read under the lock because StampWarmupStart writes it concurrently.
func (g *Guard) warmupDay(cc *models.ChannelConfig, now time.Time) int {
	g.mu.RLock()
	startedAt := cc.WarmupStartedAt
	g.mu.RUnlock()
	if startedAt == nil {
		return 1
	}
	start := startedAt.Truncate(24 * time.Hour)
	days := int(now.Truncate(24*time.Hour).Sub(start).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	return days
}

// insideSendWindow checks the configured window; a zero window means the
// campaign sends around the clock. A window wrapping midnight (start >
// end) is honored.
func (g *Guard) insideSendWindow(now time.Time) bool {
	start := g.settings.SendWindowStartHour
	end := g.settings.SendWindowEndHour
	if start == 0 && end == 0 {
		return true
	}
	hour := now.Hour()
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// DayBucket is the daily counter key, e.g. "2026-08-26".
func DayBucket(t time.Time) string {
	return t.Format("2006-01-02")
}

// HourBucket is the hourly counter key, e.g. "2026-08-26T15".
func HourBucket(t time.Time) string {
	return t.Format("2006-01-02T15")
}
