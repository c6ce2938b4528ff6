package config

// 默认回测参数与原始 Python 框架保持一致。
func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9992"
	}
	if c.App.DataDir == "" {
		c.App.DataDir = "data"
	}

	b := &c.Backtest
	if b.InitialCapital <= 0 {
		b.InitialCapital = 1000000
	}
	if b.FeeRate <= 0 {
		b.FeeRate = 0.001
	}
	if b.Slippage < 0 {
		b.Slippage = 0
	}
	if b.Slippage == 0 {
		b.Slippage = 0.0002
	}
	if b.MinTradeAmount <= 0 {
		b.MinTradeAmount = 5000
	}
	if b.MinTradeQty <= 0 {
		b.MinTradeQty = 0.01
	}
	if b.MinPositionChange <= 0 {
		b.MinPositionChange = 0.05
	}
	if b.LotSize < 0 {
		b.LotSize = 0
	}
	if b.LotSize == 0 {
		b.LotSize = 0.0001
	}
	if b.StopLossPct <= 0 {
		b.StopLossPct = 0.25
	}
	if b.TakeProfitPct <= 0 {
		b.TakeProfitPct = 0.15
	}
	if b.MaxPosition <= 0 || b.MaxPosition > 1 {
		b.MaxPosition = 1
	}
	if b.MaxConcurrentRuns <= 0 {
		b.MaxConcurrentRuns = 2
	}

	if c.Binance.BaseURL == "" {
		c.Binance.BaseURL = "https://api.binance.com"
	}
	if c.Binance.RateLimitPerMin <= 0 {
		c.Binance.RateLimitPerMin = 480
	}
	if c.Binance.MaxBatch <= 0 {
		c.Binance.MaxBatch = 1000
	}

	if c.Presets.Path == "" {
		c.Presets.Path = "configs/presets.yaml"
	}
}
