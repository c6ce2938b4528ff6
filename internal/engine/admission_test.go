package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func admissionParams() Params {
	p := DefaultParams()
	p.MinTradeAmount = 5000
	p.MinTradeQty = 0.01
	p.MinPositionChange = 0.05
	p.LotSize = 0
	p.CooldownBars = 0
	return p
}

func TestAdmissionPolicy_ShouldTrade(t *testing.T) {
	a := NewAdmissionPolicy(admissionParams())

	ok, reason := a.ShouldTrade(0.5, 0.48, 100000, 0)
	assert.False(t, ok)
	assert.Equal(t, ReasonPositionChangeSmall, reason)

	ok, reason = a.ShouldTrade(0.5, 0.0, 100000, 0)
	assert.True(t, ok)
	assert.Equal(t, ReasonApproved, reason)

	// 金额不足：变动 6% 但 NAV 太小
	ok, reason = a.ShouldTrade(0.06, 0.0, 10000, 0)
	assert.False(t, ok)
	assert.Equal(t, ReasonTradeAmountTooSmall, reason)
}

func TestAdmissionPolicy_Cooldown(t *testing.T) {
	p := admissionParams()
	p.CooldownBars = 3
	a := NewAdmissionPolicy(p)

	ok, _ := a.ShouldTrade(0.5, 0, 100000, 10)
	assert.True(t, ok)
	a.MarkTraded(10)

	// 1 根之后仍在冷却期
	ok, reason := a.ShouldTrade(0.9, 0.5, 100000, 11)
	assert.False(t, ok)
	assert.Equal(t, ReasonCooldownPeriod, reason)

	// 边界：正好等于 cooldown_bars 仍拒绝
	ok, reason = a.ShouldTrade(0.9, 0.5, 100000, 13)
	assert.False(t, ok)
	assert.Equal(t, ReasonCooldownPeriod, reason)

	ok, _ = a.ShouldTrade(0.9, 0.5, 100000, 14)
	assert.True(t, ok)
}

func TestAdmissionPolicy_TradeQuantity(t *testing.T) {
	p := admissionParams()
	a := NewAdmissionPolicy(p)

	// 目标 50% 仓位：100000*0.5/100 = 500
	assert.InDelta(t, 500.0, a.TradeQuantity(0.5, 0, 100, 100000), 1e-9)
	// 减仓为负
	assert.InDelta(t, -200.0, a.TradeQuantity(0.3, 500, 100, 100000), 1e-9)
	// 价格非法
	assert.Zero(t, a.TradeQuantity(0.5, 0, 0, 100000))
}

func TestAdmissionPolicy_LotQuantization(t *testing.T) {
	p := admissionParams()
	p.LotSize = 10
	a := NewAdmissionPolicy(p)

	// 503.7 -> 500（向下取整到 lot 整数倍，保留符号）
	assert.InDelta(t, 500.0, a.TradeQuantity(0.5037, 0, 100, 100000), 1e-9)
	assert.InDelta(t, -500.0, a.TradeQuantity(0, 503.7, 100, 100000), 1e-9)
}

func TestAdmissionPolicy_MinQtyZeroesResult(t *testing.T) {
	p := admissionParams()
	p.MinTradeQty = 1.0
	a := NewAdmissionPolicy(p)

	// 量化后 0.5 < min_trade_qty=1 归零
	assert.Zero(t, a.TradeQuantity(0.0005, 0, 100, 100000))
}

// 0.0001 这类十进制步长在二进制浮点下不可精确表示，
// 整数倍数量不能被向下取整多砍一格。
func TestQuantizeLot_DecimalExactness(t *testing.T) {
	assert.InDelta(t, 0.0003, quantizeLot(0.0003, 0.0001), 1e-12)
	assert.InDelta(t, 500.0, quantizeLot(500.0, 0.0001), 1e-9)
	assert.InDelta(t, -0.0123, quantizeLot(-0.01234, 0.0001), 1e-12)
}
