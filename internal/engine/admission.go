package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// 准入拒绝原因，落到交易日志供复盘。
const (
	ReasonApproved             = "approved"
	ReasonPositionChangeSmall  = "position_change_too_small"
	ReasonCooldownPeriod       = "cooldown_period"
	ReasonTradeAmountTooSmall  = "trade_amount_too_small"
)

// AdmissionPolicy 决定非风控驱动的调仓是否值得执行，并量化交易数量。
// 风控覆盖的交易由调用方绕过 ShouldTrade 直接进入数量计算。
type AdmissionPolicy struct {
	minTradeAmount    float64
	minTradeQty       float64
	minPositionChange float64
	lotSize           float64
	cooldownBars      int
	lastTradeBar      int
}

func NewAdmissionPolicy(p Params) *AdmissionPolicy {
	return &AdmissionPolicy{
		minTradeAmount:    p.MinTradeAmount,
		minTradeQty:       p.MinTradeQty,
		minPositionChange: p.MinPositionChange,
		lotSize:           p.LotSize,
		cooldownBars:      p.CooldownBars,
		lastTradeBar:      -9999,
	}
}

// ShouldTrade 按固定顺序检查仓位变动阈值、冷却期、最小交易金额。
func (a *AdmissionPolicy) ShouldTrade(targetPosition, currentPosition, nav float64, barIndex int) (bool, string) {
	if math.Abs(targetPosition-currentPosition) < a.minPositionChange {
		return false, ReasonPositionChangeSmall
	}
	if barIndex-a.lastTradeBar <= a.cooldownBars {
		return false, ReasonCooldownPeriod
	}
	tradeAmount := math.Abs(nav*targetPosition - nav*currentPosition)
	if tradeAmount < a.minTradeAmount {
		return false, ReasonTradeAmountTooSmall
	}
	return true, ReasonApproved
}

// TradeQuantity 计算实际交易数量：目标数量减当前数量，按 lot_size
// 向下取整到整数倍（保留符号），结果小于最小交易数量时归零。
func (a *AdmissionPolicy) TradeQuantity(targetPosition, currentQty, price, nav float64) float64 {
	if price <= 0 {
		return 0
	}
	targetQty := nav * targetPosition / price
	deltaQty := targetQty - currentQty

	if a.lotSize > 0 && !math.IsNaN(deltaQty) {
		deltaQty = quantizeLot(deltaQty, a.lotSize)
	}
	if a.minTradeQty > 0 && math.Abs(deltaQty) < a.minTradeQty {
		return 0
	}
	return deltaQty
}

// MarkTraded 在每笔成交后调用一次，重新武装冷却窗口。
func (a *AdmissionPolicy) MarkTraded(barIndex int) {
	a.lastTradeBar = barIndex
}

// LastTradeBar 暴露给引擎做日志。
func (a *AdmissionPolicy) LastTradeBar() int { return a.lastTradeBar }

// quantizeLot 用十进制运算做向下取整，避免 0.0001 这类步长在二进制
// 浮点下的边界误差把整 lot 的数量多砍掉一格。
func quantizeLot(deltaQty, lotSize float64) float64 {
	if lotSize <= 0 {
		return deltaQty
	}
	d := decimal.NewFromFloat(math.Abs(deltaQty))
	lot := decimal.NewFromFloat(lotSize)
	if lot.IsZero() {
		return deltaQty
	}
	lots := d.Div(lot).Floor()
	quantized, _ := lots.Mul(lot).Float64()
	return math.Copysign(quantized, deltaQty)
}
