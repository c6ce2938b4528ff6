package engine

import "math"

// 数量与资金比较的浮点容差。
const epsilon = 1e-9

// PositionBook 是现金/持仓/均价的唯一持有者，只执行不决策。
// 输入由调用方先经 CanAfford 校验，本身不产生错误。
type PositionBook struct {
	cash           float64
	qty            float64
	avgPrice       float64
	initialCapital float64
	totalTrades    int
}

func NewPositionBook(initialCapital float64) *PositionBook {
	return &PositionBook{
		cash:           initialCapital,
		initialCapital: initialCapital,
	}
}

func (b *PositionBook) Cash() float64           { return b.cash }
func (b *PositionBook) Qty() float64            { return b.qty }
func (b *PositionBook) AvgPrice() float64       { return b.avgPrice }
func (b *PositionBook) InitialCapital() float64 { return b.initialCapital }
func (b *PositionBook) TotalTrades() int        { return b.totalTrades }

// NAV 返回现金加持仓市值；价格非法时退化为仅现金（降级读取，
// 调用方负责记录降级事件）。
func (b *PositionBook) NAV(price float64) float64 {
	if math.IsNaN(price) || price <= 0 {
		return b.cash
	}
	return b.cash + b.qty*price
}

// PositionRatio 返回持仓市值占 NAV 的比例，NAV<=0 时为 0。
func (b *PositionBook) PositionRatio(price float64) float64 {
	nav := b.NAV(price)
	if nav <= 0 {
		return 0
	}
	return b.qty * price / nav
}

// CanAfford 检查交易可行性：卖出不超过持仓，买入现金足额（含手续费）。
func (b *PositionBook) CanAfford(deltaQty, price, feeRate float64) bool {
	if deltaQty <= 0 {
		return math.Abs(deltaQty) <= b.qty+epsilon
	}
	required := deltaQty * price * (1 + feeRate)
	return b.cash >= required
}

// ExecuteTrade 执行成交并返回 (手续费, 已实现盈亏)。
// deltaQty 正数买入、负数卖出；|deltaQty|<epsilon 为无操作。
// 买入按名义额加权更新均价；卖出对均价结算盈亏，完全平仓后
// 数量与均价一并归零。
func (b *PositionBook) ExecuteTrade(deltaQty, price, feeRate float64) (fee float64, realizedPnL *float64) {
	if math.Abs(deltaQty) < epsilon {
		return 0, nil
	}

	amount := math.Abs(deltaQty * price)
	fee = amount * feeRate
	preAvg := b.avgPrice

	if deltaQty > 0 {
		totalCost := b.avgPrice*b.qty + price*deltaQty
		b.qty += deltaQty
		if b.qty > 0 {
			b.avgPrice = totalCost / b.qty
		} else {
			b.avgPrice = 0
		}
		b.cash -= amount + fee
	} else {
		pnl := (price-preAvg)*math.Abs(deltaQty) - fee
		realizedPnL = &pnl
		b.qty += deltaQty
		b.cash += amount - fee
		if b.qty < epsilon {
			b.qty = 0
			b.avgPrice = 0
		}
	}

	b.totalTrades++
	return fee, realizedPnL
}
