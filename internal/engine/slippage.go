package engine

import (
	"math"

	"strata/internal/market"
)

// DynamicSlippage 把局部波动率折算成执行价惩罚系数。
// true range 缺少前一根 K 线时退化为 high-low。
func DynamicSlippage(bar market.Candle, prev *market.Candle, baseSlippage float64) float64 {
	if math.IsNaN(bar.High) || math.IsNaN(bar.Low) {
		return baseSlippage
	}

	highLow := bar.High - bar.Low
	trueRange := highLow
	if prev != nil {
		highClose := math.Abs(bar.High - prev.Close)
		lowClose := math.Abs(bar.Low - prev.Close)
		trueRange = math.Max(highLow, math.Max(highClose, lowClose))
	}

	volatilityFactor := 0.0
	if bar.Close > 0 && !math.IsNaN(bar.Close) {
		volatilityFactor = trueRange / bar.Close
	}
	return baseSlippage * (1 + volatilityFactor*2.0)
}

// ExecutionPrice 非对称应用滑点：买入加价、卖出减价。
func ExecutionPrice(price, slippage float64, buy bool) float64 {
	if buy {
		return price * (1 + slippage)
	}
	return price * (1 - slippage)
}
