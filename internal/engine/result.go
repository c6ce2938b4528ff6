package engine

import "time"

type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade 是一次成交的不可变记录；RealizedPnL 仅在卖出时有值。
type Trade struct {
	Timestamp   int64      `json:"timestamp"`
	Side        TradeSide  `json:"side"`
	Type        SignalType `json:"trade_type"`
	Price       float64    `json:"price"`
	Qty         float64    `json:"qty"` // 带符号：买正卖负
	Amount      float64    `json:"amount"`
	Fee         float64    `json:"fee"`
	AvgPrice    float64    `json:"avg_price"`
	NAV         float64    `json:"nav"`
	Drawdown    float64    `json:"drawdown"`
	CurrentQty  float64    `json:"current_qty"`
	CurrentCash float64    `json:"current_cash"`
	ClosePrice  float64    `json:"close_price"`
	RealizedPnL *float64   `json:"realized_pnl,omitempty"`
}

// NAVPoint 是资金曲线上的一个点，每根 K 线产出一个。
type NAVPoint struct {
	Timestamp int64   `json:"timestamp"`
	NAV       float64 `json:"nav"`
	Drawdown  float64 `json:"drawdown"`
}

// GridLevel 是策略回传的网格可视化数据（可选）。
type GridLevel struct {
	Name  string  `json:"name,omitempty"`
	Price float64 `json:"price"`
}

// Result 聚合一次 run 的全部产出；构建完成后只读。
// Failed 为显式失败标记：调用方不能假设非 error 即完整跑完。
type Result struct {
	RunID      string             `json:"run_id"`
	Symbol     string             `json:"symbol"`
	Strategy   string             `json:"strategy"`
	Params     Params             `json:"params"`
	NAV        []NAVPoint         `json:"nav"`
	Trades     []Trade            `json:"trades"`
	Metrics    map[string]float64 `json:"metrics"`
	ByType     map[SignalType]TypeAttribution `json:"attribution"`
	GridLevels []GridLevel        `json:"grid_levels,omitempty"`
	Alerts     []string           `json:"alerts,omitempty"`
	Failed     bool               `json:"failed"`
	FailReason string             `json:"fail_reason,omitempty"`
	FinishedAt time.Time          `json:"finished_at"`
}
