package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/market"
)

func barsFromCloses(closes []float64) market.Candles {
	out := make(market.Candles, len(closes))
	for i, c := range closes {
		ts := int64(i+1) * 60000
		out[i] = market.Candle{
			OpenTime:  ts - 60000,
			CloseTime: ts,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func TestRegistry(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "grid")
	assert.Contains(t, names, "macd_crossover")
	assert.Contains(t, names, "rsi_mean_reversion")
	assert.Contains(t, names, "bollinger_mean_reversion")

	_, err := New("no_such_strategy", nil)
	assert.Error(t, err)
}

func TestMACDCrossover_ParamValidation(t *testing.T) {
	_, err := New("macd_crossover", map[string]any{"fast": 30, "slow": 26})
	assert.Error(t, err)

	_, err = New("macd_crossover", map[string]any{"fast": 0})
	assert.Error(t, err)
}

func TestMACDCrossover_Signals(t *testing.T) {
	s, err := New("macd_crossover", map[string]any{"fast": 5, "slow": 10, "signal": 4})
	require.NoError(t, err)

	// 前半下跌后半上涨：末端快线在慢线上方
	closes := make([]float64, 80)
	for i := range closes {
		if i < 40 {
			closes[i] = 200 - float64(i)*2
		} else {
			closes[i] = 120 + float64(i-40)*3
		}
	}
	bars := barsFromCloses(closes)

	out, err := s.GenerateSignals(bars)
	require.NoError(t, err)
	require.NotEmpty(t, out.Signals)
	assert.Len(t, out.Signals, len(bars)-(10+4))

	for i, sig := range out.Signals {
		assert.True(t, sig.TargetPosition == 0 || sig.TargetPosition == 1)
		if i > 0 {
			assert.Greater(t, sig.Timestamp, out.Signals[i-1].Timestamp)
		}
	}
	last := out.Signals[len(out.Signals)-1]
	assert.Equal(t, 1.0, last.TargetPosition, "持续上涨末端应满仓")
}

func TestMACDCrossover_InsufficientBars(t *testing.T) {
	s, err := New("macd_crossover", nil)
	require.NoError(t, err)
	_, err = s.GenerateSignals(barsFromCloses(make([]float64, 10)))
	assert.Error(t, err)
}

func TestRSIMeanReversion_Signals(t *testing.T) {
	s, err := New("rsi_mean_reversion", map[string]any{"period": 5, "lower": 30, "upper": 70})
	require.NoError(t, err)

	// 震荡式下跌：带反弹小阳线，RSI 压在超卖区但不归零
	down := []float64{100}
	for len(down) < 40 {
		last := down[len(down)-1]
		down = append(down, last-2, last-8, last-6)
	}
	out, err := s.GenerateSignals(barsFromCloses(down))
	require.NoError(t, err)
	require.NotEmpty(t, out.Signals)
	assert.Equal(t, 1.0, out.Signals[len(out.Signals)-1].TargetPosition, "超卖应满仓")

	// 震荡式上涨：带回调小阴线，RSI 压在超买区
	up := []float64{100}
	for len(up) < 40 {
		last := up[len(up)-1]
		up = append(up, last+2, last+8, last+6)
	}
	out, err = s.GenerateSignals(barsFromCloses(up))
	require.NoError(t, err)
	require.NotEmpty(t, out.Signals)
	assert.Equal(t, 0.0, out.Signals[len(out.Signals)-1].TargetPosition, "超买应清仓")
}

func TestBollingerMeanReversion_Signals(t *testing.T) {
	s, err := New("bollinger_mean_reversion", map[string]any{"period": 10})
	require.NoError(t, err)

	// 长期横盘后跳水：收盘跌破下轨
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i%3) // 轻微抖动避免零带宽
	}
	closes[28] = 80
	closes[29] = 80

	out, err := s.GenerateSignals(barsFromCloses(closes))
	require.NoError(t, err)
	require.NotEmpty(t, out.Signals)
	assert.Equal(t, 1.0, out.Signals[len(out.Signals)-1].TargetPosition, "跌破下轨应满仓")
}

func TestGrid_Signals(t *testing.T) {
	s, err := New("grid", map[string]any{
		"trend_filter":     false,
		"cooldown_bars":    0,
		"signal_threshold": 0.01,
		"stop_loss_pct":    0.1,
		"take_profit_pct":  0.2,
		"grid_num":         10,
		"lookback":         10,
	})
	require.NoError(t, err)

	// V 形行情：先跌 30% 再收复
	closes := make([]float64, 60)
	for i := range closes {
		if i < 30 {
			closes[i] = 100 - float64(i)
		} else {
			closes[i] = 70 + float64(i-30)
		}
	}
	bars := barsFromCloses(closes)

	out, err := s.GenerateSignals(bars)
	require.NoError(t, err)
	assert.Len(t, out.Signals, len(bars))

	sawStopOut := false
	for _, sig := range out.Signals {
		assert.GreaterOrEqual(t, sig.TargetPosition, 0.0)
		assert.LessOrEqual(t, sig.TargetPosition, 1.0)
		if sig.TargetPosition == 0 {
			sawStopOut = true
		}
	}
	assert.True(t, sawStopOut, "深跌行情应触发止损清仓")

	require.Len(t, out.GridLevels, 11)
	for i := 1; i < len(out.GridLevels); i++ {
		assert.Greater(t, out.GridLevels[i].Price, out.GridLevels[i-1].Price)
	}
}

func TestGrid_ParamValidation(t *testing.T) {
	_, err := New("grid", map[string]any{"grid_num": 0})
	assert.Error(t, err)

	_, err = New("grid", map[string]any{"lookback": -1})
	assert.Error(t, err)
}
