package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/database"
)

// Metered features.
const (
	FeatureWebPaid   = "web_paid"
	FeatureLens      = "lens"
	FeatureVision    = "vision"
	FeatureAssistant = "assistant"
)

const (
	periodLayout = "2006-01"

	// Unlimited is the plan cap for features without a monthly ceiling.
	Unlimited = -1

	retentionMonths = 3
)

var ErrQuotaExceeded = errors.New("quota exceeded")

// FeatureUsage is the monthly counter of one feature.
type FeatureUsage struct {
	Feature string `json:"feature"`
	Used    int    `json:"used"`
	Cap     int    `json:"cap"`
}

// Unlimited reports whether the feature has no monthly ceiling.
func (f FeatureUsage) Unlimited() bool {
	return f.Cap < 0
}

// Meter counts per-user, per-feature, per-month units against plan caps.
type Meter struct {
	db     *database.DB
	plans  map[string]map[string]int
	logger zerolog.Logger
	now    func() time.Time
}

func NewMeter(db *database.DB, plans map[string]map[string]int, logger zerolog.Logger) *Meter {
	return &Meter{
		db:     db,
		plans:  plans,
		logger: logger.With().Str("component", "quota").Logger(),
		now:    time.Now,
	}
}

// Cap returns the monthly cap for a plan feature. Unknown plans use the
// free plan, unknown features are disabled.
func (m *Meter) Cap(plan, feature string) int {
	caps, ok := m.plans[plan]
	if !ok {
		caps = m.plans["free"]
	}
	c, ok := caps[feature]
	if !ok {
		return 0
	}
	return c
}

// Charge takes one unit of feature for the current month. The
// check and the increment happen in one conditional UPDATE so two
// concurrent charges can never both pass against a stale count.
func (m *Meter) Charge(ctx context.Context, userID int64, plan, feature string) (*Charge, error) {
	limit := m.Cap(plan, feature)
	if limit == 0 {
		return nil, fmt.Errorf("%w: %s disabled on plan %s", ErrQuotaExceeded, feature, plan)
	}

	period := m.now().UTC().Format(periodLayout)
	now := m.now().Unix()

	tx, err := m.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin quota transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, m.db.Rebind(`INSERT INTO usage_quota (user_id, feature, period, used, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (user_id, feature, period) DO NOTHING`), userID, feature, period, now)
	if err != nil {
		return nil, fmt.Errorf("failed to init quota row: %w", err)
	}

	var res sql.Result
	if limit < 0 {
		res, err = tx.ExecContext(ctx, m.db.Rebind(`UPDATE usage_quota SET used = used + 1, updated_at = ?
			WHERE user_id = ? AND feature = ? AND period = ?`), now, userID, feature, period)
	} else {
		res, err = tx.ExecContext(ctx, m.db.Rebind(`UPDATE usage_quota SET used = used + 1, updated_at = ?
			WHERE user_id = ? AND feature = ? AND period = ? AND used < ?`), now, userID, feature, period, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment quota: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		m.logger.Info().
			Int64("userId", userID).
			Str("feature", feature).
			Str("plan", plan).
			Int("cap", limit).
			Msg("Quota exceeded")
		return nil, fmt.Errorf("%w: %s cap %d reached", ErrQuotaExceeded, feature, limit)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit quota: %w", err)
	}

	return &Charge{meter: m, userID: userID, feature: feature, period: period}, nil
}

// Usage reports this month's counters for every feature of the plan.
func (m *Meter) Usage(ctx context.Context, userID int64, plan string) ([]FeatureUsage, error) {
	caps, ok := m.plans[plan]
	if !ok {
		caps = m.plans["free"]
	}

	period := m.now().UTC().Format(periodLayout)
	rows, err := m.db.Conn().QueryContext(ctx, m.db.Rebind(`SELECT feature, used FROM usage_quota
		WHERE user_id = ? AND period = ?`), userID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}
	defer rows.Close()

	used := make(map[string]int)
	for rows.Next() {
		var feature string
		var n int
		if err := rows.Scan(&feature, &n); err != nil {
			return nil, err
		}
		used[feature] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]FeatureUsage, 0, len(caps))
	for feature, c := range caps {
		out = append(out, FeatureUsage{Feature: feature, Used: used[feature], Cap: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out, nil
}

// Prune deletes counters older than the retention window.
func (m *Meter) Prune(ctx context.Context) error {
	cutoff := m.now().UTC().AddDate(0, -retentionMonths, 0).Format(periodLayout)
	res, err := m.db.Conn().ExecContext(ctx, m.db.Rebind(`DELETE FROM usage_quota WHERE period < ?`), cutoff)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to prune usage quota")
		return err
	}
	n, _ := res.RowsAffected()
	m.logger.Info().Str("cutoff", cutoff).Int64("deleted", n).Msg("usage quota pruned")
	return nil
}

// Charge is one unit taken from a monthly counter.
type Charge struct {
	meter    *Meter
	userID   int64
	feature  string
	period   string
	refunded atomic.Bool
}

// Refund returns the unit. Only the first call has an effect.
func (c *Charge) Refund(ctx context.Context) error {
	if c == nil || !c.refunded.CompareAndSwap(false, true) {
		return nil
	}
	_, err := c.meter.db.Conn().ExecContext(ctx, c.meter.db.Rebind(`UPDATE usage_quota SET used = used - 1, updated_at = ?
		WHERE user_id = ? AND feature = ? AND period = ? AND used > 0`),
		c.meter.now().Unix(), c.userID, c.feature, c.period)
	if err != nil {
		return fmt.Errorf("failed to refund %s: %w", c.feature, err)
	}
	c.meter.logger.Debug().Int64("userId", c.userID).Str("feature", c.feature).Msg("Quota refunded")
	return nil
}
