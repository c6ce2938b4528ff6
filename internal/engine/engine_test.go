package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/market"
)

func makeBar(ts int64, close float64) market.Candle {
	return market.Candle{
		OpenTime:  ts - 60000,
		CloseTime: ts,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1000,
	}
}

func testParams() Params {
	p := DefaultParams()
	p.InitialCapital = 100000
	p.FeeRate = 0.001
	p.Slippage = 0
	p.LotSize = 0
	p.MinTradeAmount = 5000
	p.MinTradeQty = 0.01
	p.MinPositionChange = 0.05
	p.CooldownBars = 0
	return p
}

func mustEngine(t *testing.T, p Params) *Engine {
	t.Helper()
	eng, err := New(p, RunContext{RunID: "test", Quiet: true})
	require.NoError(t, err)
	return eng
}

func TestEngine_EmptyBars(t *testing.T) {
	eng := mustEngine(t, testParams())
	result, err := eng.Run(context.Background(), nil, nil)

	require.ErrorIs(t, err, ErrNoBars)
	require.NotNil(t, result)
	assert.True(t, result.Failed)
	assert.NotEmpty(t, result.FailReason)
}

// 单根 K 线场景：10 万本金、手续费 0.001、零滑点、close=100、目标仓位 0.5，
// 应买入 500，手续费 50，现金 49950，净值恰好损失手续费。
func TestEngine_SingleBarScenario(t *testing.T) {
	eng := mustEngine(t, testParams())
	bars := market.Candles{makeBar(60000, 100)}
	signals := []Signal{{Timestamp: 60000, TargetPosition: 0.5, Type: SignalNormal}}

	result, err := eng.Run(context.Background(), bars, signals)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	trade := result.Trades[0]
	assert.Equal(t, SideBuy, trade.Side)
	assert.InDelta(t, 100.0, trade.Price, 1e-9)
	assert.InDelta(t, 500.0, trade.Qty, 1e-9)
	assert.InDelta(t, 50.0, trade.Fee, 1e-9)
	assert.InDelta(t, 49950.0, trade.CurrentCash, 1e-9)
	assert.InDelta(t, 500.0, trade.CurrentQty, 1e-9)
	assert.InDelta(t, 99950.0, trade.NAV, 1e-6)
}

// 风控优先级：止盈触发时即使仓位变动低于 min_position_change 也必须成交。
func TestEngine_RiskOverrideBypassesAdmission(t *testing.T) {
	p := testParams()
	p.FeeRate = 0
	p.MinPositionChange = 0.5
	p.TakeProfitPct = 0.25
	p.StopLossPct = 0.5
	eng := mustEngine(t, p)

	bars := market.Candles{makeBar(60000, 100), makeBar(120000, 126)}
	signals := []Signal{
		{Timestamp: 60000, TargetPosition: 0.5},
		{Timestamp: 120000, TargetPosition: 1.0},
	}

	result, err := eng.Run(context.Background(), bars, signals)
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)

	tp := result.Trades[1]
	assert.Equal(t, SignalTakeProfit, tp.Type)
	assert.Equal(t, SideSell, tp.Side)
	require.NotNil(t, tp.RealizedPnL)
	assert.Greater(t, *tp.RealizedPnL, 0.0)
}

func TestEngine_CooldownRejectsSecondSignal(t *testing.T) {
	p := testParams()
	p.CooldownBars = 3
	var logs []string
	eng, err := New(p, RunContext{RunID: "cooldown", Logf: func(format string, v ...any) {
		logs = append(logs, fmt.Sprintf(format, v...))
	}})
	require.NoError(t, err)

	bars := market.Candles{makeBar(60000, 100), makeBar(120000, 100)}
	signals := []Signal{
		{Timestamp: 60000, TargetPosition: 0.5},
		{Timestamp: 120000, TargetPosition: 0.9},
	}

	result, runErr := eng.Run(context.Background(), bars, signals)
	require.NoError(t, runErr)
	assert.Len(t, result.Trades, 1)

	joined := strings.Join(logs, "\n")
	assert.Contains(t, joined, ReasonCooldownPeriod)
}

func TestEngine_StopLossLiquidatesResidual(t *testing.T) {
	p := testParams()
	p.FeeRate = 0.01
	p.LotSize = 7
	p.MinTradeQty = 1
	p.StopLossPct = 0.2
	eng := mustEngine(t, p)

	// 满仓买入会触发资金收缩，收缩后的持仓不再是 lot 的整数倍，
	// 止损的量化卖出会留下残余，必须改为清空全部持仓。
	bars := market.Candles{makeBar(60000, 100), makeBar(120000, 75)}
	signals := []Signal{
		{Timestamp: 60000, TargetPosition: 1.0},
		{Timestamp: 120000, TargetPosition: 0.5},
	}

	result, err := eng.Run(context.Background(), bars, signals)
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)

	buy := result.Trades[0]
	assert.InDelta(t, 100000.0/101.0, buy.CurrentQty, 1e-6)

	sl := result.Trades[1]
	assert.Equal(t, SignalStopLoss, sl.Type)
	assert.InDelta(t, 0.0, sl.CurrentQty, 1e-9, "止损必须清空全部持仓")
}

// 资金不足的买入收缩到最大可买数量，现金不会变负。
func TestEngine_BuyClampedToAffordable(t *testing.T) {
	p := testParams()
	p.MaxPosition = 1.0
	p.MinPositionChange = 0.01
	eng := mustEngine(t, p)

	bars := market.Candles{makeBar(60000, 100)}
	signals := []Signal{{Timestamp: 60000, TargetPosition: 1.0}}

	result, err := eng.Run(context.Background(), bars, signals)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.GreaterOrEqual(t, result.Trades[0].CurrentCash, -1e-9)
}

func TestEngine_DegradedBarSkipsTradeLogic(t *testing.T) {
	eng := mustEngine(t, testParams())
	bars := market.Candles{
		makeBar(60000, 100),
		makeBar(120000, 0), // 非法价格
		makeBar(180000, 100),
	}
	signals := []Signal{{Timestamp: 120000, TargetPosition: 0.5}}

	result, err := eng.Run(context.Background(), bars, signals)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	require.Len(t, result.NAV, 3)
	// 降级读取：坏价格的 K 线按现金记净值
	assert.InDelta(t, 100000.0, result.NAV[1].NAV, 1e-9)
}

func TestEngine_SparseSignalsStillRecordNAV(t *testing.T) {
	eng := mustEngine(t, testParams())
	bars := market.Candles{makeBar(60000, 100), makeBar(120000, 101), makeBar(180000, 102)}

	result, err := eng.Run(context.Background(), bars, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Len(t, result.NAV, 3)
	assert.False(t, result.Failed)
}

func TestEngine_UnmatchedSignalAlert(t *testing.T) {
	eng := mustEngine(t, testParams())
	bars := market.Candles{makeBar(60000, 100)}
	signals := []Signal{{Timestamp: 999999, TargetPosition: 0.5}}

	result, err := eng.Run(context.Background(), bars, signals)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Alerts)
}

// 守恒性质：每笔成交后 nav == cash + qty*close，状态永不为负。
func TestEngine_Invariants(t *testing.T) {
	p := testParams()
	p.MinPositionChange = 0.01
	p.CooldownBars = 0
	eng := mustEngine(t, p)

	prices := []float64{100, 104, 98, 95, 110, 120, 90, 85, 100, 105}
	bars := make(market.Candles, len(prices))
	signals := make([]Signal, len(prices))
	targets := []float64{0.2, 0.5, 0.8, 0.1, 0.9, 0.4, 0.0, 0.7, 0.3, 0.6}
	for i, price := range prices {
		ts := int64(i+1) * 60000
		bars[i] = makeBar(ts, price)
		bars[i].High = price * 1.02
		bars[i].Low = price * 0.98
		signals[i] = Signal{Timestamp: ts, TargetPosition: targets[i]}
	}

	result, err := eng.Run(context.Background(), bars, signals)
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)

	for _, trade := range result.Trades {
		assert.GreaterOrEqual(t, trade.CurrentCash, -1e-9)
		assert.GreaterOrEqual(t, trade.CurrentQty, -1e-9)
		assert.InDelta(t, trade.CurrentCash+trade.CurrentQty*trade.ClosePrice, trade.NAV, 1e-6)
	}
	for _, point := range result.NAV {
		assert.LessOrEqual(t, point.Drawdown, 1e-12)
	}
}

func TestEngine_ContextCancelReturnsPartialResult(t *testing.T) {
	eng := mustEngine(t, testParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bars := market.Candles{makeBar(60000, 100)}
	result, err := eng.Run(ctx, bars, nil)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Failed)
}
