package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"strata/internal/market"
)

func TestDynamicSlippage_NoPrevBar(t *testing.T) {
	bar := market.Candle{High: 105, Low: 95, Close: 100}
	// true range 退化为 high-low=10，波动率因子 0.1
	got := DynamicSlippage(bar, nil, 0.001)
	assert.InDelta(t, 0.001*(1+0.1*2), got, 1e-12)
}

func TestDynamicSlippage_TrueRangeUsesPrevClose(t *testing.T) {
	prev := market.Candle{Close: 120}
	bar := market.Candle{High: 105, Low: 95, Close: 100}
	// |high-prev_close|=15 大于 high-low=10
	got := DynamicSlippage(bar, &prev, 0.001)
	assert.InDelta(t, 0.001*(1+0.15*2), got, 1e-12)
}

// 收盘价相同、振幅更大的 K 线必须产生严格更大的动态滑点。
func TestDynamicSlippage_Monotonic(t *testing.T) {
	narrow := market.Candle{High: 101, Low: 99, Close: 100}
	wide := market.Candle{High: 108, Low: 92, Close: 100}

	sNarrow := DynamicSlippage(narrow, nil, 0.0002)
	sWide := DynamicSlippage(wide, nil, 0.0002)
	assert.Greater(t, sWide, sNarrow)
}

func TestDynamicSlippage_ZeroCloseGuard(t *testing.T) {
	bar := market.Candle{High: 105, Low: 95, Close: 0}
	assert.InDelta(t, 0.001, DynamicSlippage(bar, nil, 0.001), 1e-12)
}

func TestExecutionPrice_Asymmetric(t *testing.T) {
	assert.InDelta(t, 100.5, ExecutionPrice(100, 0.005, true), 1e-9)
	assert.InDelta(t, 99.5, ExecutionPrice(100, 0.005, false), 1e-9)
}
