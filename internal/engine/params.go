package engine

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	"strata/internal/config"
)

// Params 是单次 run 的引擎参数快照。
type Params struct {
	InitialCapital    float64 `json:"initial_capital"`
	FeeRate           float64 `json:"fee_rate"`
	Slippage          float64 `json:"slippage"`
	MinTradeAmount    float64 `json:"min_trade_amount"`
	MinTradeQty       float64 `json:"min_trade_qty"`
	MinPositionChange float64 `json:"min_position_change"`
	LotSize           float64 `json:"lot_size"`
	CooldownBars      int     `json:"cooldown_bars"`
	StopLossPct       float64 `json:"stop_loss_pct"`
	TakeProfitPct     float64 `json:"take_profit_pct"`
	MaxPosition       float64 `json:"max_position"`
}

// DefaultParams 与原框架的默认回测参数一致。
func DefaultParams() Params {
	return Params{
		InitialCapital:    1000000,
		FeeRate:           0.001,
		Slippage:          0.0002,
		MinTradeAmount:    5000,
		MinTradeQty:       0.01,
		MinPositionChange: 0.05,
		LotSize:           0.0001,
		CooldownBars:      0,
		StopLossPct:       0.25,
		TakeProfitPct:     0.15,
		MaxPosition:       1.0,
	}
}

// ParamsFromConfig 把全局配置转换为 run 级默认参数。
func ParamsFromConfig(b config.BacktestConfig) Params {
	return Params{
		InitialCapital:    b.InitialCapital,
		FeeRate:           b.FeeRate,
		Slippage:          b.Slippage,
		MinTradeAmount:    b.MinTradeAmount,
		MinTradeQty:       b.MinTradeQty,
		MinPositionChange: b.MinPositionChange,
		LotSize:           b.LotSize,
		CooldownBars:      b.CooldownBars,
		StopLossPct:       b.StopLossPct,
		TakeProfitPct:     b.TakeProfitPct,
		MaxPosition:       b.MaxPosition,
	}
}

// MergeJSON 将请求里的参数对象宽松合并进 p：数字可以是 JSON number
// 或字符串，未知键忽略。原框架接受任意混合类型的 params dict，这里
// 保留同样的容错边界。
func (p *Params) MergeJSON(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("params json 格式无效")
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return fmt.Errorf("params 必须是 JSON 对象")
	}

	setF := func(key string, dst *float64) {
		if v := parsed.Get(key); v.Exists() {
			*dst = v.Float()
		}
	}
	setF("initial_capital", &p.InitialCapital)
	setF("fee_rate", &p.FeeRate)
	setF("slippage", &p.Slippage)
	setF("min_trade_amount", &p.MinTradeAmount)
	setF("min_trade_qty", &p.MinTradeQty)
	setF("min_position_change", &p.MinPositionChange)
	setF("lot_size", &p.LotSize)
	setF("stop_loss_pct", &p.StopLossPct)
	setF("take_profit_pct", &p.TakeProfitPct)
	setF("max_position", &p.MaxPosition)
	if v := parsed.Get("cooldown_bars"); v.Exists() {
		p.CooldownBars = int(v.Int())
	}
	return p.Validate()
}

// Validate 拒绝 NaN/Inf 与明显非法的组合。
func (p Params) Validate() error {
	fields := map[string]float64{
		"initial_capital":     p.InitialCapital,
		"fee_rate":            p.FeeRate,
		"slippage":            p.Slippage,
		"min_trade_amount":    p.MinTradeAmount,
		"min_trade_qty":       p.MinTradeQty,
		"min_position_change": p.MinPositionChange,
		"lot_size":            p.LotSize,
		"stop_loss_pct":       p.StopLossPct,
		"take_profit_pct":     p.TakeProfitPct,
		"max_position":        p.MaxPosition,
	}
	for name, val := range fields {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("参数 %s 非法: %v", name, val)
		}
		if val < 0 {
			return fmt.Errorf("参数 %s 不能为负: %v", name, val)
		}
	}
	if p.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital 必须大于 0")
	}
	if p.FeeRate >= 1 {
		return fmt.Errorf("fee_rate 必须小于 1")
	}
	if p.MaxPosition > 1 {
		return fmt.Errorf("max_position 不能超过 1")
	}
	if p.CooldownBars < 0 {
		return fmt.Errorf("cooldown_bars 不能为负")
	}
	return nil
}
