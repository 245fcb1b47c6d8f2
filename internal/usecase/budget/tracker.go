// Package budget guards paid source calls with daily and monthly spend limits.
package budget

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/clock"
	"github.com/kailas-cloud/jobfed/internal/domain"
	"github.com/kailas-cloud/jobfed/internal/domain/usage"
	"github.com/kailas-cloud/jobfed/internal/logger"
)

// Action defines behavior when the spend budget is exceeded.
type Action string

const (
	// ActionWarn logs a warning but allows the call.
	ActionWarn Action = "warn"
	// ActionReject blocks the call.
	ActionReject Action = "reject"
)

// microUnits converts currency to the integer unit stored in counters.
const microUnits = 1_000_000

// Limits are spend caps in currency units. Zero means unlimited.
type Limits struct {
	Daily   float64
	Monthly float64
	Action  Action
}

// Tracker is an in-memory spend tracker with optional write-behind persistence.
// Check never touches the store; Spend and Record persist after updating memory.
type Tracker struct {
	mu             sync.Mutex
	dailyUsed      int64
	monthlyUsed    int64
	dailyLimit     int64
	monthlyLimit   int64
	action         Action
	lastDayReset   time.Time
	lastMonthReset time.Time
	store          Store
	gauge          *prometheus.GaugeVec
	clock          clock.Clock
	logger         *zap.Logger
}

// NewTracker creates a tracker. A nil clock uses the system clock.
func NewTracker(limits Limits, clk clock.Clock, l *zap.Logger) *Tracker {
	if clk == nil {
		clk = clock.Real{}
	}
	action := limits.Action
	if action == "" {
		action = ActionWarn
	}
	now := clk.Now().UTC()
	return &Tracker{
		dailyLimit:     toMicro(limits.Daily),
		monthlyLimit:   toMicro(limits.Monthly),
		action:         action,
		lastDayReset:   truncateToDay(now),
		lastMonthReset: truncateToMonth(now),
		clock:          clk,
		logger:         logger.OrNop(l),
	}
}

// WithStore attaches a persistence store and loads current counters.
func (b *Tracker) WithStore(ctx context.Context, store Store) *Tracker {
	b.store = store
	b.loadFromStore(ctx)
	return b
}

// WithGauge reports remaining budget into g, labelled by period.
func (b *Tracker) WithGauge(g *prometheus.GaugeVec) *Tracker {
	b.gauge = g
	b.mu.Lock()
	b.publishLocked()
	b.mu.Unlock()
	return b
}

func (b *Tracker) loadFromStore(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now().UTC()

	if val, err := b.store.Used(ctx, usage.PeriodDay, now); err == nil {
		b.dailyUsed = val
	} else {
		b.logger.Warn("Failed to load daily budget from store", zap.Error(err))
	}

	if val, err := b.store.Used(ctx, usage.PeriodMonth, now); err == nil {
		b.monthlyUsed = val
	} else {
		b.logger.Warn("Failed to load monthly budget from store", zap.Error(err))
	}

	b.publishLocked()
	b.logger.Info("Budget loaded from store",
		zap.Float64("daily_used", fromMicro(b.dailyUsed)),
		zap.Float64("monthly_used", fromMicro(b.monthlyUsed)),
	)
}

// Check verifies the budget allows another call. In-memory only.
func (b *Tracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNeeded()
	return b.admitLocked(0)
}

// Spend admits a call of the given cost and records it. With ActionReject a call
// that would push either counter past its limit is refused with ErrBudgetExceeded.
// Admission and the counter update happen under one lock.
func (b *Tracker) Spend(ctx context.Context, cost float64) error {
	if cost <= 0 {
		return nil
	}
	micro := toMicro(cost)

	b.mu.Lock()
	b.resetIfNeeded()
	if err := b.admitLocked(micro); err != nil {
		b.mu.Unlock()
		return err
	}
	at := b.addLocked(micro)
	b.mu.Unlock()

	b.persist(ctx, at, micro)
	return nil
}

// Record registers spend without an admission check.
func (b *Tracker) Record(cost float64) {
	if cost <= 0 {
		return
	}
	micro := toMicro(cost)

	b.mu.Lock()
	b.resetIfNeeded()
	at := b.addLocked(micro)
	b.mu.Unlock()

	b.persist(context.Background(), at, micro)
}

func (b *Tracker) admitLocked(micro int64) error {
	dailyExceeded := b.dailyLimit > 0 && b.dailyUsed+micro > b.dailyLimit
	monthlyExceeded := b.monthlyLimit > 0 && b.monthlyUsed+micro > b.monthlyLimit
	if micro == 0 {
		dailyExceeded = b.dailyLimit > 0 && b.dailyUsed >= b.dailyLimit
		monthlyExceeded = b.monthlyLimit > 0 && b.monthlyUsed >= b.monthlyLimit
	}

	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if b.action == ActionReject {
		return domain.ErrBudgetExceeded
	}

	// action=warn: log but allow the call through
	b.logger.Warn("Source spend budget exceeded",
		zap.Float64("daily_used", fromMicro(b.dailyUsed)),
		zap.Float64("daily_limit", fromMicro(b.dailyLimit)),
		zap.Float64("monthly_used", fromMicro(b.monthlyUsed)),
		zap.Float64("monthly_limit", fromMicro(b.monthlyLimit)),
	)
	return nil
}

// addLocked updates the counters and returns the time the spend is booked at.
func (b *Tracker) addLocked(micro int64) time.Time {
	b.dailyUsed += micro
	b.monthlyUsed += micro
	b.publishLocked()
	return b.clock.Now().UTC()
}

func (b *Tracker) persist(ctx context.Context, at time.Time, micro int64) {
	if b.store == nil {
		return
	}

	// Write-behind with its own deadline so a slow store does not stall the caller's ctx.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	for _, p := range []usage.Period{usage.PeriodDay, usage.PeriodMonth} {
		if err := b.store.Add(ctx, p, at, micro); err != nil {
			b.logger.Warn("Failed to persist spend", zap.String("period", string(p)), zap.Error(err))
		}
	}
}

// RemainingDaily returns budget left today (-1 if unlimited).
func (b *Tracker) RemainingDaily() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNeeded()
	return remaining(b.dailyLimit, b.dailyUsed)
}

// RemainingMonthly returns budget left this month (-1 if unlimited).
func (b *Tracker) RemainingMonthly() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNeeded()
	return remaining(b.monthlyLimit, b.monthlyUsed)
}

// DailyLimit returns the daily cap (0 if unlimited).
func (b *Tracker) DailyLimit() float64 { return fromMicro(b.dailyLimit) }

// MonthlyLimit returns the monthly cap (0 if unlimited).
func (b *Tracker) MonthlyLimit() float64 { return fromMicro(b.monthlyLimit) }

// DailyUsed returns spend recorded today.
func (b *Tracker) DailyUsed() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	return fromMicro(b.dailyUsed)
}

// MonthlyUsed returns spend recorded this month.
func (b *Tracker) MonthlyUsed() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetIfNeeded()
	return fromMicro(b.monthlyUsed)
}

func (b *Tracker) publishLocked() {
	if b.gauge == nil {
		return
	}
	b.gauge.WithLabelValues("daily").Set(remaining(b.dailyLimit, b.dailyUsed))
	b.gauge.WithLabelValues("monthly").Set(remaining(b.monthlyLimit, b.monthlyUsed))
}

// resetIfNeeded zeroes counters when the day or month rolls over.
func (b *Tracker) resetIfNeeded() {
	now := b.clock.Now().UTC()
	today := truncateToDay(now)
	thisMonth := truncateToMonth(now)

	if today.After(b.lastDayReset) {
		b.dailyUsed = 0
		b.lastDayReset = today
	}
	if thisMonth.After(b.lastMonthReset) {
		b.monthlyUsed = 0
		b.lastMonthReset = thisMonth
	}
}

func remaining(limit, used int64) float64 {
	if limit == 0 {
		return -1 // unlimited
	}
	if used >= limit {
		return 0
	}
	return fromMicro(limit - used)
}

func toMicro(v float64) int64   { return int64(math.Round(v * microUnits)) }
func fromMicro(v int64) float64 { return float64(v) / microUnits }

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
