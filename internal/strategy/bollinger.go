package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"strata/internal/engine"
	"strata/internal/market"
)

func init() {
	Register("bollinger_mean_reversion", newBollingerMeanReversion)
}

// BollingerParams 控制布林带周期与带宽倍数。
type BollingerParams struct {
	Period int     `toml:"period"`
	StdDev float64 `toml:"std_dev"`
}

// BollingerMeanReversion 收盘跌破下轨买入、突破上轨清仓，带内持有。
type BollingerMeanReversion struct {
	period int
	stdDev float64
}

func newBollingerMeanReversion(params map[string]any) (Strategy, error) {
	p := BollingerParams{Period: 20, StdDev: 2.0}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Period <= 1 {
		return nil, fmt.Errorf("bollinger_mean_reversion: period 必须 > 1，实际 %d", p.Period)
	}
	if p.StdDev <= 0 {
		return nil, fmt.Errorf("bollinger_mean_reversion: std_dev 必须为正，实际 %.2f", p.StdDev)
	}
	return &BollingerMeanReversion{period: p.Period, stdDev: p.StdDev}, nil
}

func (s *BollingerMeanReversion) Name() string { return "bollinger_mean_reversion" }

func (s *BollingerMeanReversion) GenerateSignals(bars market.Candles) (*Output, error) {
	warmup := s.period + 1
	if len(bars) <= warmup {
		return nil, fmt.Errorf("bollinger_mean_reversion: K 线不足，需 > %d 根，实际 %d", warmup, len(bars))
	}
	closes := bars.Closes()
	upper, _, lower := talib.BBands(closes, s.period, s.stdDev, s.stdDev, talib.SMA)
	if len(upper) != len(bars) {
		return nil, fmt.Errorf("bollinger_mean_reversion: 指标长度 %d 与 K 线数 %d 不一致", len(upper), len(bars))
	}

	positions := make([]float64, len(bars))
	for i := range bars {
		switch {
		case i < s.period:
			positions[i] = 0
		case closes[i] < lower[i]:
			positions[i] = 1
		case closes[i] > upper[i]:
			positions[i] = 0
		case i > 0:
			positions[i] = positions[i-1]
		}
	}

	out := &Output{}
	for i := warmup; i < len(bars); i++ {
		out.Signals = append(out.Signals, engine.Signal{
			Timestamp:      bars[i].Timestamp(),
			TargetPosition: positions[i-1],
			Type:           engine.SignalNormal,
		})
	}
	return out, nil
}
