package engine

import (
	"context"
	"fmt"
	"time"

	"leadpilot/models"
	"leadpilot/store"
)

// DecisionConfig holds the auto-pause thresholds. Zero MinReplyRate
// disables the reply-rate floor; MaxBounceRate is always enforced.
type DecisionConfig struct {
	WindowDays int
	// MaxBounceRate pauses the campaign when exceeded, e.g. 0.10.
	MaxBounceRate float64
	// MinReplyRate pauses the campaign when undercut, e.g. 0.01.
	MinReplyRate float64
	// MinAttempts is the sample floor below which no pause is recommended.
	MinAttempts int
}

func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		WindowDays:    7,
		MaxBounceRate: 0.10,
		MinReplyRate:  0,
		MinAttempts:   20,
	}
}

// Recommendation is advisory data: the orchestrator decides whether to
// honor it.
type Recommendation struct {
	Pause    bool
	Reason   string
	Snapshot models.CampaignMetricsSnapshot
}

// DecisionEngine aggregates attempt/reply metrics over a trailing window
// and recommends pause/continue.
type DecisionEngine struct {
	store store.Store
	cfg   DecisionConfig
	now   func() time.Time
}

func NewDecisionEngine(st store.Store, cfg DecisionConfig) *DecisionEngine {
	return &DecisionEngine{store: st, cfg: cfg, now: time.Now}
}

// WithClock overrides the engine's clock. Tests only.
func (d *DecisionEngine) WithClock(now func() time.Time) *DecisionEngine {
	d.now = now
	return d
}

// Snapshot computes the trailing-window metrics. All rates guard against
// division by zero: no attempts means all-zero rates.
func (d *DecisionEngine) Snapshot(ctx context.Context, campaignID uint) (models.CampaignMetricsSnapshot, error) {
	end := d.now()
	start := end.AddDate(0, 0, -d.cfg.WindowDays)

	attempts, bounces, err := d.store.AttemptCounts(ctx, campaignID, start)
	if err != nil {
		return models.CampaignMetricsSnapshot{}, err
	}
	replies, positives, err := d.store.ReplyCounts(ctx, campaignID, start)
	if err != nil {
		return models.CampaignMetricsSnapshot{}, err
	}

	snapshot := models.CampaignMetricsSnapshot{
		CampaignID:    campaignID,
		WindowStart:   start,
		WindowEnd:     end,
		Attempts:      attempts,
		Replies:       replies,
		PositiveCount: positives,
		Bounces:       bounces,
	}
	if attempts > 0 {
		snapshot.ReplyRate = float64(replies) / float64(attempts)
		snapshot.BounceRate = float64(bounces) / float64(attempts)
	}
	if replies > 0 {
		snapshot.PositiveRate = float64(positives) / float64(replies)
	}
	return snapshot, nil
}

// Evaluate compares the snapshot against the thresholds and emits the
// recommendation with a human-readable reason.
func (d *DecisionEngine) Evaluate(ctx context.Context, campaignID uint) (Recommendation, error) {
	snapshot, err := d.Snapshot(ctx, campaignID)
	if err != nil {
		return Recommendation{}, err
	}

	rec := Recommendation{Snapshot: snapshot}
	if snapshot.Attempts < d.cfg.MinAttempts {
		rec.Reason = fmt.Sprintf("only %d attempts in window, below the %d sample floor",
			snapshot.Attempts, d.cfg.MinAttempts)
		return rec, nil
	}

	if snapshot.BounceRate > d.cfg.MaxBounceRate {
		rec.Pause = true
		rec.Reason = fmt.Sprintf("bounce rate %.2f exceeds threshold %.2f (%d bounces / %d attempts)",
			snapshot.BounceRate, d.cfg.MaxBounceRate, snapshot.Bounces, snapshot.Attempts)
		return rec, nil
	}

	if d.cfg.MinReplyRate > 0 && snapshot.ReplyRate < d.cfg.MinReplyRate {
		rec.Pause = true
		rec.Reason = fmt.Sprintf("reply rate %.3f below floor %.3f (%d replies / %d attempts)",
			snapshot.ReplyRate, d.cfg.MinReplyRate, snapshot.Replies, snapshot.Attempts)
		return rec, nil
	}

	rec.Reason = "metrics within thresholds"
	return rec, nil
}
