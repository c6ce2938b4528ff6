package config

import "fmt"

func validate(cfg *Config) error {
	b := cfg.Backtest
	if b.FeeRate >= 1 {
		return fmt.Errorf("backtest.fee_rate 必须小于 1，当前 %v", b.FeeRate)
	}
	if b.Slippage >= 1 {
		return fmt.Errorf("backtest.slippage 必须小于 1，当前 %v", b.Slippage)
	}
	if b.MinPositionChange >= 1 {
		return fmt.Errorf("backtest.min_position_change 必须小于 1，当前 %v", b.MinPositionChange)
	}
	if b.StopLossPct >= 1 {
		return fmt.Errorf("backtest.stop_loss_pct 必须小于 1，当前 %v", b.StopLossPct)
	}
	if b.CooldownBars < 0 {
		return fmt.Errorf("backtest.cooldown_bars 不能为负，当前 %d", b.CooldownBars)
	}
	return nil
}
