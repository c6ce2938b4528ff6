package backtest

import (
	"encoding/json"
	"time"

	"strata/internal/engine"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// Run 表示一次回测任务及其汇总结果。
type Run struct {
	ID             string        `json:"id"`
	Symbol         string        `json:"symbol"`
	Timeframe      string        `json:"timeframe"`
	Strategy       string        `json:"strategy"`
	Preset         string        `json:"preset,omitempty"`
	Status         string        `json:"status"`
	StartTS        int64         `json:"start_ts"`
	EndTS          int64         `json:"end_ts"`
	InitialCapital float64       `json:"initial_capital"`
	FinalCapital   float64       `json:"final_capital"`
	ReturnPct      float64       `json:"return_pct"`
	MaxDrawdown    float64       `json:"max_drawdown"`
	Sharpe         float64       `json:"sharpe"`
	WinRate        float64       `json:"win_rate"`
	TradeCount     int           `json:"trade_count"`
	Message        string        `json:"message,omitempty"`
	Params         engine.Params `json:"params"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	CompletedAt    time.Time     `json:"completed_at,omitzero"`
}

// RunRequest 为 HTTP 提交使用。Preset 与 Strategy 二选一；
// 同时给出时 Preset 的参数先生效，StrategyParams 覆盖其上。
type RunRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	Timeframe      string          `json:"timeframe" binding:"required"`
	StartTS        int64           `json:"start_ts" binding:"required"`
	EndTS          int64           `json:"end_ts" binding:"required"`
	Strategy       string          `json:"strategy"`
	Preset         string          `json:"preset"`
	StrategyParams map[string]any  `json:"strategy_params"`
	EngineParams   json.RawMessage `json:"engine_params"`
}

// SweepRequest 描述一次参数扫描：对 Grid 中每个键的取值做笛卡尔积，
// 逐组覆盖到 Base.StrategyParams 上并行回测。
type SweepRequest struct {
	Base RunRequest       `json:"base" binding:"required"`
	Grid map[string][]any `json:"grid" binding:"required"`
}
