package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func navSeries(values ...float64) []NAVPoint {
	out := make([]NAVPoint, len(values))
	for i, v := range values {
		out[i] = NAVPoint{Timestamp: int64(i+1) * 60000, NAV: v}
	}
	return out
}

func pnlPtr(v float64) *float64 { return &v }

func TestComputeMetrics_Empty(t *testing.T) {
	assert.Empty(t, ComputeMetrics(nil, 100000, nil))
	assert.Empty(t, ComputeMetrics(navSeries(100000), 100000, nil))
}

func TestComputeMetrics_ReturnAndDrawdown(t *testing.T) {
	nav := navSeries(100000, 110000, 99000, 104500)
	m := ComputeMetrics(nav, 100000, nil)

	assert.InDelta(t, 0.045, m["final_return"], 1e-9)
	assert.InDelta(t, 104500.0, m["final_capital"], 1e-9)
	// 峰值 110000 回落到 99000
	assert.InDelta(t, 99000.0/110000.0-1, m["max_drawdown"], 1e-9)
}

func TestComputeMetrics_SharpeZeroVariance(t *testing.T) {
	nav := navSeries(100000, 100000, 100000, 100000)
	m := ComputeMetrics(nav, 100000, nil)
	_, ok := m["sharpe"]
	assert.False(t, ok, "零方差不落 sharpe")
}

func TestComputeMetrics_Sharpe(t *testing.T) {
	nav := navSeries(100, 101, 103, 102, 105)
	m := ComputeMetrics(nav, 100, nil)
	sharpe, ok := m["sharpe"]
	require.True(t, ok)
	assert.False(t, math.IsNaN(sharpe))
	assert.Greater(t, sharpe, 0.0)
}

func TestComputeMetrics_TradeStats(t *testing.T) {
	nav := navSeries(100000, 101000)
	trades := []Trade{
		{Side: SideBuy, Fee: 10},
		{Side: SideSell, Fee: 12, RealizedPnL: pnlPtr(500)},
		{Side: SideSell, Fee: 8, RealizedPnL: pnlPtr(-200)},
	}
	m := ComputeMetrics(nav, 100000, trades)

	assert.InDelta(t, 3, m["trade_count"], 1e-9)
	assert.InDelta(t, 30, m["total_fee"], 1e-9)
	assert.InDelta(t, 300, m["total_profit"], 1e-9)
	assert.InDelta(t, 0.5, m["win_rate"], 1e-9)
	assert.InDelta(t, 500.0/200.0, m["profit_factor"], 1e-9)
}

func TestAttributeByType(t *testing.T) {
	trades := []Trade{
		{Side: SideBuy, Type: SignalNormal},
		{Side: SideSell, Type: SignalNormal, RealizedPnL: pnlPtr(100)},
		{Side: SideSell, Type: SignalNormal, RealizedPnL: pnlPtr(-40)},
		{Side: SideSell, Type: SignalStopLoss, RealizedPnL: pnlPtr(-300)},
		{Side: SideSell, Type: SignalTakeProfit, RealizedPnL: pnlPtr(250)},
	}
	attr := AttributeByType(trades)

	normal := attr[SignalNormal]
	assert.Equal(t, 2, normal.TradeCount)
	assert.InDelta(t, 60, normal.TotalPnL, 1e-9)
	assert.InDelta(t, 0.5, normal.WinRate, 1e-9)
	assert.InDelta(t, 30, normal.AvgPnL, 1e-9)

	sl := attr[SignalStopLoss]
	assert.Equal(t, 1, sl.TradeCount)
	assert.InDelta(t, -300, sl.TotalPnL, 1e-9)
	assert.Zero(t, sl.WinRate)

	tp := attr[SignalTakeProfit]
	assert.InDelta(t, 250, tp.AvgPnL, 1e-9)

	// 无卖出成交的类型不出现在结果里
	_, ok := attr[SignalMaxPosition]
	assert.False(t, ok)
}
