package strategy

import (
	"fmt"
	"math"

	"strata/internal/engine"
	"strata/internal/market"
)

func init() {
	Register("grid", newGrid)
}

// GridParams 控制动态网格策略。
type GridParams struct {
	GridNum         int     `toml:"grid_num"`
	Lookback        int     `toml:"lookback"`
	CooldownBars    int     `toml:"cooldown_bars"`
	SignalThreshold float64 `toml:"signal_threshold"`
	StopLossPct     float64 `toml:"stop_loss_pct"`
	TakeProfitPct   float64 `toml:"take_profit_pct"`
	TrendWindow     int     `toml:"trend_window"`
	TrendFilter     bool    `toml:"trend_filter"`
}

func defaultGridParams() GridParams {
	return GridParams{
		GridNum:         10,
		Lookback:        30,
		CooldownBars:    2,
		SignalThreshold: 0.05,
		StopLossPct:     0.1,
		TakeProfitPct:   0.2,
		TrendWindow:     20,
		TrendFilter:     true,
	}
}

// Grid 是带动态边界的增强网格：滚动区间定位 + 非线性仓位
// （低位重仓、高位轻仓），叠加趋势过滤、阈值过滤、冷却与止损止盈。
type Grid struct {
	p GridParams
}

func newGrid(params map[string]any) (Strategy, error) {
	p := defaultGridParams()
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.GridNum <= 0 {
		return nil, fmt.Errorf("grid: grid_num 必须为正，实际 %d", p.GridNum)
	}
	if p.Lookback <= 0 {
		return nil, fmt.Errorf("grid: lookback 必须为正，实际 %d", p.Lookback)
	}
	if p.TrendFilter && p.TrendWindow <= 0 {
		return nil, fmt.Errorf("grid: trend_window 必须为正，实际 %d", p.TrendWindow)
	}
	return &Grid{p: p}, nil
}

func (s *Grid) Name() string { return "grid" }

func (s *Grid) GenerateSignals(bars market.Candles) (*Output, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("grid: K 线序列为空")
	}
	closes := bars.Closes()
	n := len(closes)
	const eps = 1e-9

	position := 0.0
	lastSignalIndex := -s.p.CooldownBars
	entryPrice := math.NaN()

	out := &Output{Signals: make([]engine.Signal, 0, n)}
	var lastLow, lastHigh float64

	for i := 0; i < n; i++ {
		price := closes[i]
		low, high := rollingBounds(closes, i, s.p.Lookback)
		lastLow, lastHigh = low, high

		gridPos := (price - low) / (high - low + eps)
		gridPos = math.Min(1, math.Max(0, gridPos))
		// 低位重仓、高位轻仓
		target := 1 - gridPos*gridPos

		if s.p.TrendFilter {
			ma := rollingMean(closes, i, s.p.TrendWindow)
			if price <= ma {
				// 逆势不开新仓，维持现状
				target = position
			}
		}

		if math.Abs(target-position) < s.p.SignalThreshold {
			target = position
		}
		if i-lastSignalIndex < s.p.CooldownBars {
			target = position
		}

		if target != position {
			lastSignalIndex = i
			if target > position && math.IsNaN(entryPrice) {
				entryPrice = price
			}
		}

		if !math.IsNaN(entryPrice) && entryPrice > 0 {
			drawdown := (entryPrice - price) / entryPrice
			profit := (price - entryPrice) / entryPrice
			if drawdown >= s.p.StopLossPct {
				target = 0
			} else if profit >= s.p.TakeProfitPct {
				// 锁定一半利润，但不压低本就更高的目标
				target = math.Max(position*0.5, target)
			}
		}

		position = target
		out.Signals = append(out.Signals, engine.Signal{
			Timestamp:      bars[i].Timestamp(),
			TargetPosition: position,
			Type:           engine.SignalNormal,
		})
	}

	out.GridLevels = gridLevels(lastLow, lastHigh, s.p.GridNum)
	return out, nil
}

// rollingBounds 返回 closes[max(0,i-window+1)..i] 的最小最大值。
func rollingBounds(closes []float64, i, window int) (low, high float64) {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	low, high = closes[start], closes[start]
	for _, v := range closes[start+1 : i+1] {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
	}
	return low, high
}

func rollingMean(closes []float64, i, window int) float64 {
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, v := range closes[start : i+1] {
		sum += v
	}
	return sum / float64(i+1-start)
}

// gridLevels 在最终滚动区间上均匀铺 gridNum+1 条价格线。
func gridLevels(low, high float64, gridNum int) []engine.GridLevel {
	if high <= low {
		return nil
	}
	step := (high - low) / float64(gridNum)
	levels := make([]engine.GridLevel, 0, gridNum+1)
	for i := 0; i <= gridNum; i++ {
		levels = append(levels, engine.GridLevel{
			Name:  fmt.Sprintf("grid_%d", i),
			Price: low + step*float64(i),
		})
	}
	return levels
}
