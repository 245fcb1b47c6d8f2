package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/clock"
	"github.com/kailas-cloud/jobfed/internal/domain"
	"github.com/kailas-cloud/jobfed/internal/domain/usage"
)

var testNow = time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)

func newTracker(daily, monthly float64, action Action) (*Tracker, *clock.Fake) {
	clk := clock.NewFake(testNow)
	return NewTracker(Limits{Daily: daily, Monthly: monthly, Action: action}, clk, zap.NewNop()), clk
}

func TestTracker_RejectWhenExceeded(t *testing.T) {
	bt, _ := newTracker(1, 0, ActionReject)

	bt.Record(1)

	if err := bt.Check(context.Background()); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestTracker_WarnWhenExceeded(t *testing.T) {
	bt, _ := newTracker(1, 0, ActionWarn)

	bt.Record(2)

	if err := bt.Check(context.Background()); err != nil {
		t.Fatalf("expected nil error for warn action, got %v", err)
	}
	if err := bt.Spend(context.Background(), 0.5); err != nil {
		t.Fatalf("warn action must admit spend, got %v", err)
	}
}

func TestTracker_MonthlyReject(t *testing.T) {
	bt, _ := newTracker(0, 5, ActionReject)

	bt.Record(5)

	if err := bt.Check(context.Background()); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded for monthly limit, got %v", err)
	}
}

func TestTracker_UnlimitedWhenZero(t *testing.T) {
	bt, _ := newTracker(0, 0, ActionReject)

	bt.Record(999999)

	if err := bt.Spend(context.Background(), 10); err != nil {
		t.Fatalf("expected nil error for unlimited budget, got %v", err)
	}
	if bt.RemainingDaily() != -1 || bt.RemainingMonthly() != -1 {
		t.Error("expected -1 remaining for unlimited budget")
	}
}

func TestTracker_SpendRefusesOvershoot(t *testing.T) {
	bt, _ := newTracker(0.05, 0, ActionReject)
	ctx := context.Background()

	if err := bt.Spend(ctx, 0.03); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := bt.Spend(ctx, 0.03); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected overshoot to be refused, got %v", err)
	}
	if got := bt.DailyUsed(); got != 0.03 {
		t.Errorf("refused spend must not be recorded, used=%v", got)
	}
	if err := bt.Spend(ctx, 0.02); err != nil {
		t.Fatalf("exact fit must be admitted, got %v", err)
	}
}

func TestTracker_FreeCallsAlwaysAdmitted(t *testing.T) {
	bt, _ := newTracker(0.01, 0, ActionReject)
	bt.Record(1)

	if err := bt.Spend(context.Background(), 0); err != nil {
		t.Fatalf("zero-cost call must be admitted, got %v", err)
	}
}

func TestTracker_Remaining(t *testing.T) {
	bt, _ := newTracker(1, 10, ActionWarn)

	bt.Record(0.25)

	if bt.DailyLimit() != 1 || bt.MonthlyLimit() != 10 {
		t.Errorf("limits: got %v/%v", bt.DailyLimit(), bt.MonthlyLimit())
	}
	if got := bt.RemainingDaily(); got != 0.75 {
		t.Errorf("expected 0.75 daily remaining, got %v", got)
	}
	if got := bt.RemainingMonthly(); got != 9.75 {
		t.Errorf("expected 9.75 monthly remaining, got %v", got)
	}

	bt.Record(5)
	if got := bt.RemainingDaily(); got != 0 {
		t.Errorf("expected remaining clamped to 0, got %v", got)
	}
}

func TestTracker_DayRollover(t *testing.T) {
	bt, clk := newTracker(1, 10, ActionReject)

	bt.Record(1)
	clk.Advance(2 * time.Hour) // crosses into April

	if bt.DailyUsed() != 0 {
		t.Errorf("expected daily reset, got %v", bt.DailyUsed())
	}
	if bt.MonthlyUsed() != 0 {
		t.Errorf("expected monthly reset on month change, got %v", bt.MonthlyUsed())
	}
}

// --- Mock Store ---

type mockStore struct {
	mu     sync.Mutex
	data   map[usage.Period]int64
	getErr error
	setErr error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[usage.Period]int64)}
}

func (m *mockStore) Add(_ context.Context, period usage.Period, _ time.Time, micro int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[period] += micro
	return nil
}

func (m *mockStore) Used(_ context.Context, period usage.Period, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.data[period], nil
}

// --- Persistence tests ---

func TestTracker_WithStore_LoadsValues(t *testing.T) {
	store := newMockStore()
	bt, _ := newTracker(10, 100, ActionReject)
	store.data[usage.PeriodDay] = 3 * microUnits
	store.data[usage.PeriodMonth] = 50 * microUnits

	bt.WithStore(context.Background(), store)

	if bt.DailyUsed() != 3 {
		t.Errorf("expected daily_used=3, got %v", bt.DailyUsed())
	}
	if bt.MonthlyUsed() != 50 {
		t.Errorf("expected monthly_used=50, got %v", bt.MonthlyUsed())
	}
}

func TestTracker_Spend_PersistsToStore(t *testing.T) {
	store := newMockStore()
	bt, _ := newTracker(10, 100, ActionWarn)
	bt.WithStore(context.Background(), store)

	_ = bt.Spend(context.Background(), 0.01)
	_ = bt.Spend(context.Background(), 0.02)

	store.mu.Lock()
	daily := store.data[usage.PeriodDay]
	monthly := store.data[usage.PeriodMonth]
	store.mu.Unlock()

	if daily != 30_000 || monthly != 30_000 {
		t.Errorf("expected 30000 micro-units persisted, got daily=%d monthly=%d", daily, monthly)
	}
}

func TestTracker_WithStore_LoadError(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("connection refused")

	bt, _ := newTracker(1, 10, ActionReject)
	bt.WithStore(context.Background(), store)

	if bt.DailyUsed() != 0 || bt.MonthlyUsed() != 0 {
		t.Error("expected zero counters on load error")
	}
}

func TestTracker_Record_StoreWriteError(t *testing.T) {
	store := newMockStore()
	bt, _ := newTracker(1, 10, ActionWarn)
	bt.WithStore(context.Background(), store)

	store.mu.Lock()
	store.setErr = errors.New("write timeout")
	store.mu.Unlock()

	// in-memory still updates, store error is logged
	bt.Record(0.5)

	if bt.DailyUsed() != 0.5 {
		t.Errorf("expected daily_used=0.5 even with store error, got %v", bt.DailyUsed())
	}
}

func TestTracker_Gauge(t *testing.T) {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_budget_remaining"}, []string{"period"})
	bt, _ := newTracker(2, 0, ActionWarn)
	bt.WithGauge(g)

	bt.Record(0.5)

	if got := testutil.ToFloat64(g.WithLabelValues("daily")); got != 1.5 {
		t.Errorf("expected daily gauge 1.5, got %v", got)
	}
	if got := testutil.ToFloat64(g.WithLabelValues("monthly")); got != -1 {
		t.Errorf("expected monthly gauge -1 (unlimited), got %v", got)
	}
}

func TestTracker_ConcurrentSpend(t *testing.T) {
	bt, _ := newTracker(1, 0, ActionReject)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if bt.Spend(context.Background(), 0.1) == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted > 10 {
		t.Errorf("admitted %d calls of 0.1 under a limit of 1", admitted)
	}
}
