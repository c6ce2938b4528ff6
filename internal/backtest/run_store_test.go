package backtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/engine"
)

func newTestRunStore(t *testing.T) *RunStore {
	t.Helper()
	store, err := NewRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRun(id string) Run {
	now := time.Now().Truncate(time.Second)
	return Run{
		ID:             id,
		Symbol:         "BTCUSDT",
		Timeframe:      "1h",
		Strategy:       "grid",
		Status:         RunStatusPending,
		StartTS:        1000,
		EndTS:          5000,
		InitialCapital: 100000,
		Params:         engine.DefaultParams(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestRunStore_CreateAndGet(t *testing.T) {
	store := newTestRunStore(t)
	ctx := context.Background()
	run := sampleRun("run-1")

	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, RunStatusPending, got.Status)
	assert.Equal(t, run.Params.InitialCapital, got.Params.InitialCapital)
	assert.True(t, got.CompletedAt.IsZero())

	_, err = store.GetRun(ctx, "missing")
	assert.Error(t, err)
}

func TestRunStore_UpdateStatus(t *testing.T) {
	store := newTestRunStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, sampleRun("run-1")))

	require.NoError(t, store.UpdateStatus(ctx, "run-1", RunStatusFailed, "区间内没有本地数据"))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, got.Status)
	assert.Equal(t, "区间内没有本地数据", got.Message)
}

func TestRunStore_SaveResultRoundTrip(t *testing.T) {
	store := newTestRunStore(t)
	ctx := context.Background()
	run := sampleRun("run-1")
	require.NoError(t, store.CreateRun(ctx, run))

	pnl := 120.5
	result := &engine.Result{
		Metrics: map[string]float64{
			"final_capital": 101000,
			"final_return":  0.01,
			"max_drawdown":  -0.02,
		},
		ByType: map[engine.SignalType]engine.TypeAttribution{
			engine.SignalTakeProfit: {TradeCount: 1, TotalPnL: pnl, WinRate: 1, AvgPnL: pnl},
		},
		Trades: []engine.Trade{
			{Timestamp: 2000, Side: engine.SideBuy, Type: engine.SignalNormal, Price: 100, Qty: 10, Amount: 1000, NAV: 100000},
			{Timestamp: 3000, Side: engine.SideSell, Type: engine.SignalTakeProfit, Price: 112, Qty: 10, Amount: 1120, NAV: 101000, RealizedPnL: &pnl},
		},
		NAV: []engine.NAVPoint{
			{Timestamp: 2000, NAV: 100000},
			{Timestamp: 3000, NAV: 101000, Drawdown: 0},
		},
	}
	run.Status = RunStatusDone
	run.FinalCapital = 101000
	run.ReturnPct = 0.01
	run.TradeCount = 2
	run.CompletedAt = time.Now()
	require.NoError(t, store.SaveResult(ctx, run, result))

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.Equal(t, 101000.0, got.FinalCapital)
	assert.Equal(t, 2, got.TradeCount)
	assert.False(t, got.CompletedAt.IsZero())

	metrics, err := store.Metrics(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 0.01, metrics["final_return"])

	trades, err := store.Trades(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, engine.SideBuy, trades[0].Side)
	require.NotNil(t, trades[1].RealizedPnL)
	assert.Equal(t, pnl, *trades[1].RealizedPnL)

	equity, err := store.Equity(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, equity, 2)
	assert.Equal(t, 101000.0, equity[1].NAV)

	attr, err := store.Attribution(ctx, "run-1")
	require.NoError(t, err)
	require.Contains(t, attr, engine.SignalTakeProfit)
	assert.Equal(t, 1, attr[engine.SignalTakeProfit].TradeCount)
}

func TestRunStore_ListRunsOrdered(t *testing.T) {
	store := newTestRunStore(t)
	ctx := context.Background()

	older := sampleRun("run-old")
	older.CreatedAt = time.Now().Add(-time.Hour)
	older.UpdatedAt = older.CreatedAt
	newer := sampleRun("run-new")
	require.NoError(t, store.CreateRun(ctx, older))
	require.NoError(t, store.CreateRun(ctx, newer))

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].ID)
	assert.Equal(t, "run-old", runs[1].ID)
}
