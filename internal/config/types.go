package config

// Config 是 strata 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Backtest BacktestConfig `toml:"backtest"`
	Binance  BinanceConfig  `toml:"binance"`
	Presets  PresetsConfig  `toml:"presets"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	DataDir  string `toml:"data_dir"`
}

// BacktestConfig 提供引擎参数的全局默认值，单次 run 可覆盖。
type BacktestConfig struct {
	InitialCapital    float64 `toml:"initial_capital"`
	FeeRate           float64 `toml:"fee_rate"`
	Slippage          float64 `toml:"slippage"`
	MinTradeAmount    float64 `toml:"min_trade_amount"`
	MinTradeQty       float64 `toml:"min_trade_qty"`
	MinPositionChange float64 `toml:"min_position_change"`
	LotSize           float64 `toml:"lot_size"`
	CooldownBars      int     `toml:"cooldown_bars"`
	StopLossPct       float64 `toml:"stop_loss_pct"`
	TakeProfitPct     float64 `toml:"take_profit_pct"`
	MaxPosition       float64 `toml:"max_position"`
	MaxConcurrentRuns int     `toml:"max_concurrent_runs"`
}

// BinanceConfig 描述 K 线数据源的访问方式。
type BinanceConfig struct {
	BaseURL         string `toml:"base_url"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
	MaxBatch        int    `toml:"max_batch"`
}

type PresetsConfig struct {
	Path string `toml:"path"`
}
