package safety

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpilot/models"
	"leadpilot/store"
)

func testSettings(channels ...models.ChannelConfig) *models.SafetySettings {
	return &models.SafetySettings{
		CampaignID:     1,
		ChannelConfigs: channels,
	}
}

func emailChannel() models.ChannelConfig {
	return models.ChannelConfig{
		Channel:  models.ChannelEmail,
		Enabled:  true,
		DailyCap: 100,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEffectiveDailyLimitWarmupCurve(t *testing.T) {
	cc := models.ChannelConfig{
		DailyCap:        100,
		WarmupEnabled:   true,
		WarmupStart:     5,
		WarmupIncrement: 2,
		WarmupMax:       20,
	}

	assert.Equal(t, 5, cc.EffectiveDailyLimit(1))
	assert.Equal(t, 7, cc.EffectiveDailyLimit(2))
	assert.Equal(t, 19, cc.EffectiveDailyLimit(8))
	assert.Equal(t, 20, cc.EffectiveDailyLimit(9))
	assert.Equal(t, 20, cc.EffectiveDailyLimit(500))
	// Defensive input still lands on day one.
	assert.Equal(t, 5, cc.EffectiveDailyLimit(0))
}

func TestEffectiveDailyLimitWithoutWarmup(t *testing.T) {
	cc := models.ChannelConfig{DailyCap: 40, WarmupEnabled: false, WarmupStart: 5}
	assert.Equal(t, 40, cc.EffectiveDailyLimit(1))
	assert.Equal(t, 40, cc.EffectiveDailyLimit(30))
}

func TestCanSendNowChannelDisabled(t *testing.T) {
	cc := emailChannel()
	cc.Enabled = false
	guard := NewGuard(testSettings(cc), NewMemoryUsageStore(), store.NewMemoryStore())

	decision, err := guard.CanSendNow(context.Background(), models.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, models.SkipReasonSafetyLimit, decision.Reason)
	assert.Equal(t, "channel disabled", decision.Detail)
}

func TestCanSendNowUnknownChannel(t *testing.T) {
	guard := NewGuard(testSettings(emailChannel()), NewMemoryUsageStore(), store.NewMemoryStore())

	decision, err := guard.CanSendNow(context.Background(), models.ChannelLinkedIn)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestCanSendNowSendWindow(t *testing.T) {
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		start   int
		end     int
		hour    int
		allowed bool
	}{
		{"zero window always sends", 0, 0, 3, true},
		{"inside normal window", 9, 17, 12, true},
		{"window start is inclusive", 9, 17, 9, true},
		{"window end is exclusive", 9, 17, 17, false},
		{"before normal window", 9, 17, 7, false},
		{"midnight wrap evening side", 22, 6, 23, true},
		{"midnight wrap morning side", 22, 6, 3, true},
		{"midnight wrap daytime denied", 22, 6, 12, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			settings := testSettings(emailChannel())
			settings.SendWindowStartHour = tc.start
			settings.SendWindowEndHour = tc.end

			guard := NewGuard(settings, NewMemoryUsageStore(), store.NewMemoryStore()).
				WithClock(fixedClock(day.Add(time.Duration(tc.hour) * time.Hour)))

			decision, err := guard.CanSendNow(context.Background(), models.ChannelEmail)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, decision.Allowed)
			if !tc.allowed {
				assert.Equal(t, "outside send window", decision.Detail)
			}
		})
	}
}

func TestCanSendNowDailyLimitWithWarmup(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	startedAt := now.Add(-24 * time.Hour) // warmup day 2: limit 7

	cc := emailChannel()
	cc.WarmupEnabled = true
	cc.WarmupStart = 5
	cc.WarmupIncrement = 2
	cc.WarmupMax = 20
	cc.WarmupStartedAt = &startedAt

	usage := NewMemoryUsageStore()
	guard := NewGuard(testSettings(cc), usage, store.NewMemoryStore()).WithClock(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		ok, err := usage.Reserve(ctx, 1, models.ChannelEmail, DayBucket(now), 7)
		require.NoError(t, err)
		require.True(t, ok)
	}

	decision, err := guard.CanSendNow(ctx, models.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "daily limit reached", decision.Detail)
}

func TestCanSendNowHourlyCap(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cc := emailChannel()
	cc.HourlyCap = 2

	usage := NewMemoryUsageStore()
	guard := NewGuard(testSettings(cc), usage, store.NewMemoryStore()).WithClock(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := usage.Reserve(ctx, 1, models.ChannelEmail, HourBucket(now), 2)
		require.NoError(t, err)
		require.True(t, ok)
	}

	decision, err := guard.CanSendNow(ctx, models.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "hourly cap reached", decision.Detail)
}

func TestIsContactAllowed(t *testing.T) {
	ctx := context.Background()
	dnc := store.NewMemoryStore()
	require.NoError(t, dnc.AddDoNotContact(ctx, &models.DoNotContact{Email: "blocked@listed.com", Reason: "unsubscribe"}))

	settings := testSettings(emailChannel())
	settings.BlockedEmails = []string{"ceo@rival.com"}
	settings.BlockedDomains = []string{"competitor.io"}
	guard := NewGuard(settings, NewMemoryUsageStore(), dnc)

	cases := []struct {
		name    string
		email   string
		allowed bool
		detail  string
	}{
		{"clean lead", "jane@acme.com", true, ""},
		{"blocked email", "CEO@rival.com", false, "email blocked"},
		{"blocked domain", "anyone@competitor.io", false, "domain blocked"},
		{"do-not-contact list", "blocked@listed.com", false, "on do-not-contact list"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lead := &models.Lead{Email: tc.email}
			decision, err := guard.IsContactAllowed(ctx, lead)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, decision.Allowed)
			if !tc.allowed {
				assert.Equal(t, models.SkipReasonDNC, decision.Reason)
				assert.Equal(t, tc.detail, decision.Detail)
			}
		})
	}
}

func TestReserveFailsClosedAtLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cc := emailChannel()
	cc.DailyCap = 2
	guard := NewGuard(testSettings(cc), NewMemoryUsageStore(), store.NewMemoryStore()).
		WithClock(fixedClock(now))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := guard.Reserve(ctx, models.ChannelEmail)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := guard.Reserve(ctx, models.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReserveHonorsHourlyCap(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cc := emailChannel()
	cc.HourlyCap = 1
	guard := NewGuard(testSettings(cc), NewMemoryUsageStore(), store.NewMemoryStore()).
		WithClock(fixedClock(now))
	ctx := context.Background()

	ok, err := guard.Reserve(ctx, models.ChannelEmail)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Reserve(ctx, models.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReserveUnknownChannel(t *testing.T) {
	guard := NewGuard(testSettings(), NewMemoryUsageStore(), store.NewMemoryStore())
	ok, err := guard.Reserve(context.Background(), models.ChannelEmail)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStampWarmupStartExactlyOnce(t *testing.T) {
	cc := emailChannel()
	cc.WarmupEnabled = true
	cc.WarmupStart = 5
	guard := NewGuard(testSettings(cc), NewMemoryUsageStore(), store.NewMemoryStore())

	anchor := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// All of a campaign's lead workers race to anchor the warmup curve;
	// only one may win and the stamp must be the winner's time.
	const workers = 16
	var wg sync.WaitGroup
	var stamped int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			at := anchor.Add(time.Duration(offset) * time.Second)
			if guard.StampWarmupStart(models.ChannelEmail, at) {
				atomic.AddInt32(&stamped, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, stamped)
	got := guard.ChannelConfig(models.ChannelEmail).WarmupStartedAt
	require.NotNil(t, got)
	first := *got
	assert.False(t, first.Before(anchor))
	assert.False(t, first.After(anchor.Add(workers*time.Second)))

	// Later calls never move the anchor.
	assert.False(t, guard.StampWarmupStart(models.ChannelEmail, anchor.Add(time.Hour)))
	assert.True(t, guard.ChannelConfig(models.ChannelEmail).WarmupStartedAt.Equal(first))
}

func TestStampWarmupStartRequiresWarmup(t *testing.T) {
	guard := NewGuard(testSettings(emailChannel()), NewMemoryUsageStore(), store.NewMemoryStore())
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.False(t, guard.StampWarmupStart(models.ChannelEmail, now), "warmup disabled")
	assert.False(t, guard.StampWarmupStart("carrier-pigeon", now), "unknown channel")
	assert.Nil(t, guard.ChannelConfig(models.ChannelEmail).WarmupStartedAt)
}

func TestSettingsSnapshotIsDetached(t *testing.T) {
	cc := emailChannel()
	cc.WarmupEnabled = true
	guard := NewGuard(testSettings(cc), NewMemoryUsageStore(), store.NewMemoryStore())

	snapshot := guard.Settings()
	require.True(t, guard.StampWarmupStart(models.ChannelEmail, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)))

	assert.Nil(t, snapshot.ChannelConfigs[0].WarmupStartedAt, "earlier snapshot must not see later stamps")
	assert.NotNil(t, guard.Settings().ChannelConfigs[0].WarmupStartedAt)
}

func TestMemoryUsageStoreCounts(t *testing.T) {
	usage := NewMemoryUsageStore()
	ctx := context.Background()
	bucket := "2026-03-10"

	n, err := usage.Count(ctx, 1, models.ChannelEmail, bucket)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	ok, err := usage.Reserve(ctx, 1, models.ChannelEmail, bucket, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = usage.Count(ctx, 1, models.ChannelEmail, bucket)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Buckets are isolated per campaign and channel.
	n, err = usage.Count(ctx, 2, models.ChannelEmail, bucket)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
