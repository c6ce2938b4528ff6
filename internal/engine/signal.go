package engine

import (
	"fmt"
	"math"
)

// SignalType 是封闭枚举：交易归因按此分桶，新增类型需同步 metrics.go。
type SignalType string

const (
	SignalNormal      SignalType = "normal"
	SignalTakeProfit  SignalType = "take_profit"
	SignalStopLoss    SignalType = "stop_loss"
	SignalMaxPosition SignalType = "max_position_limit"
)

// SignalTypes 返回全部合法类型（归因与校验共用）。
func SignalTypes() []SignalType {
	return []SignalType{SignalNormal, SignalTakeProfit, SignalStopLoss, SignalMaxPosition}
}

func (t SignalType) Valid() bool {
	switch t {
	case SignalNormal, SignalTakeProfit, SignalStopLoss, SignalMaxPosition:
		return true
	}
	return false
}

// Signal 表示策略在某根 K 线上的目标仓位意图。
// 并非每根 K 线都有信号；按时间戳与 K 线精确匹配。
type Signal struct {
	Timestamp      int64      `json:"timestamp"`
	TargetPosition float64    `json:"target_position"`
	Type           SignalType `json:"signal_type"`
}

// Validate 拒绝 NaN/Inf 与越界目标仓位。
func (s Signal) Validate() error {
	if math.IsNaN(s.TargetPosition) || math.IsInf(s.TargetPosition, 0) {
		return fmt.Errorf("signal@%d target_position 非法: %v", s.Timestamp, s.TargetPosition)
	}
	if s.TargetPosition < 0 || s.TargetPosition > 1 {
		return fmt.Errorf("signal@%d target_position 越界: %v", s.Timestamp, s.TargetPosition)
	}
	if s.Type != "" && !s.Type.Valid() {
		return fmt.Errorf("signal@%d 未知类型: %s", s.Timestamp, s.Type)
	}
	return nil
}
