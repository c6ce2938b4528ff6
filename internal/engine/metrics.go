package engine

import "math"

const annualizationFactor = 252

// TypeAttribution 是按信号类型分桶的卖出盈亏归因。
type TypeAttribution struct {
	TotalPnL   float64 `json:"total_pnl"`
	TradeCount int     `json:"trade_count"`
	WinRate    float64 `json:"win_rate"`
	AvgPnL     float64 `json:"avg_pnl"`
}

// ComputeMetrics 把净值序列与成交流归并为绩效指标。
// 少于 2 个净值点时返回空 map（与原框架一致）。
func ComputeMetrics(nav []NAVPoint, initialCapital float64, trades []Trade) map[string]float64 {
	metrics := make(map[string]float64)
	if len(nav) < 2 {
		return metrics
	}

	finalCapital := nav[len(nav)-1].NAV
	metrics["final_capital"] = finalCapital
	if initialCapital > 0 {
		metrics["final_return"] = finalCapital/initialCapital - 1
	}

	maxDrawdown := 0.0
	peak := nav[0].NAV
	for _, p := range nav {
		if p.NAV > peak {
			peak = p.NAV
		}
		if peak > 0 {
			dd := p.NAV/peak - 1
			if dd < maxDrawdown {
				maxDrawdown = dd
			}
		}
	}
	metrics["max_drawdown"] = maxDrawdown

	if sharpe, ok := sharpeRatio(nav); ok {
		metrics["sharpe"] = sharpe
	}

	if len(trades) > 0 {
		metrics["trade_count"] = float64(len(trades))
		totalFee := 0.0
		for _, t := range trades {
			totalFee += t.Fee
		}
		metrics["total_fee"] = totalFee

		var pnls []float64
		for _, t := range trades {
			if t.RealizedPnL != nil {
				pnls = append(pnls, *t.RealizedPnL)
			}
		}
		if len(pnls) > 0 {
			total, wins, winSum, lossSum, lossCount := 0.0, 0, 0.0, 0.0, 0
			for _, pnl := range pnls {
				total += pnl
				if pnl > 0 {
					wins++
					winSum += pnl
				} else {
					lossCount++
					lossSum += pnl
				}
			}
			metrics["total_profit"] = total
			metrics["win_rate"] = float64(wins) / float64(len(pnls))
			if wins > 0 && lossCount > 0 {
				avgWin := winSum / float64(wins)
				avgLoss := math.Abs(lossSum / float64(lossCount))
				if avgLoss > 0 {
					metrics["profit_factor"] = avgWin / avgLoss
				}
			}
		}
	}

	return metrics
}

// sharpeRatio 计算年化夏普率；净值点不足或零方差时返回 ok=false，
// 调用方不落指标（除零守卫，不是错误）。
func sharpeRatio(nav []NAVPoint) (float64, bool) {
	if len(nav) < 3 {
		return 0, false
	}
	returns := make([]float64, 0, len(nav)-1)
	for i := 1; i < len(nav); i++ {
		prev := nav[i-1].NAV
		if prev == 0 {
			continue
		}
		returns = append(returns, nav[i].NAV/prev-1)
	}
	if len(returns) < 2 {
		return 0, false
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance <= 0 {
		return 0, false
	}
	return math.Sqrt(annualizationFactor) * mean / math.Sqrt(variance), true
}

// AttributeByType 只统计卖出侧成交（realized_pnl 仅在卖出时定义），
// 按封闭枚举的全部类型初始化分桶，保证归因处理是穷尽的。
func AttributeByType(trades []Trade) map[SignalType]TypeAttribution {
	buckets := make(map[SignalType][]float64, len(SignalTypes()))
	for _, st := range SignalTypes() {
		buckets[st] = nil
	}
	for _, t := range trades {
		if t.Side != SideSell || t.RealizedPnL == nil {
			continue
		}
		st := t.Type
		if !st.Valid() {
			st = SignalNormal
		}
		buckets[st] = append(buckets[st], *t.RealizedPnL)
	}

	out := make(map[SignalType]TypeAttribution, len(buckets))
	for st, pnls := range buckets {
		if len(pnls) == 0 {
			continue
		}
		total, wins := 0.0, 0
		for _, pnl := range pnls {
			total += pnl
			if pnl > 0 {
				wins++
			}
		}
		out[st] = TypeAttribution{
			TotalPnL:   total,
			TradeCount: len(pnls),
			WinRate:    float64(wins) / float64(len(pnls)),
			AvgPnL:     total / float64(len(pnls)),
		}
	}
	return out
}
