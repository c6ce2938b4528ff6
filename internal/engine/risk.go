package engine

import "math"

// RiskPolicy 在风控阈值被触发时覆盖策略目标仓位。
// 状态每根 K 线由当前价格/持仓重新推导，不跨 K 线持久化。
type RiskPolicy struct {
	stopLossPct   float64
	takeProfitPct float64
	maxPosition   float64
}

func NewRiskPolicy(stopLossPct, takeProfitPct, maxPosition float64) *RiskPolicy {
	return &RiskPolicy{
		stopLossPct:   stopLossPct,
		takeProfitPct: takeProfitPct,
		maxPosition:   maxPosition,
	}
}

// Check 按固定顺序评估止盈、止损、最大仓位，首个命中即返回。
// 返回 (是否覆盖, 原因, 最终目标仓位)。风控覆盖对后续的交易
// 准入规则有绝对优先级：不会因为金额太小或冷却期被否决。
func (r *RiskPolicy) Check(qty, avgPrice, price, targetPosition float64) (bool, SignalType, float64) {
	if qty <= 0 || avgPrice <= 0 || math.IsNaN(price) {
		if targetPosition > r.maxPosition {
			return true, SignalMaxPosition, r.maxPosition
		}
		return false, SignalNormal, targetPosition
	}

	profitPct := (price - avgPrice) / avgPrice

	if profitPct >= r.takeProfitPct {
		// 减半锁定部分利润
		return true, SignalTakeProfit, targetPosition * 0.5
	}
	if profitPct <= -r.stopLossPct {
		// 完全平仓
		return true, SignalStopLoss, 0
	}
	if targetPosition > r.maxPosition {
		return true, SignalMaxPosition, r.maxPosition
	}
	return false, SignalNormal, targetPosition
}
