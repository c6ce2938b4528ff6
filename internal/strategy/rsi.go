package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"strata/internal/engine"
	"strata/internal/market"
)

func init() {
	Register("rsi_mean_reversion", newRSIMeanReversion)
}

// RSIParams 控制 RSI 周期与超买超卖阈值。
type RSIParams struct {
	Period int     `toml:"period"`
	Lower  float64 `toml:"lower"`
	Upper  float64 `toml:"upper"`
}

// RSIMeanReversion 超卖买入、超买清仓，区间内持有不动。
type RSIMeanReversion struct {
	period int
	lower  float64
	upper  float64
}

func newRSIMeanReversion(params map[string]any) (Strategy, error) {
	p := RSIParams{Period: 14, Lower: 30, Upper: 70}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Period <= 1 {
		return nil, fmt.Errorf("rsi_mean_reversion: period 必须 > 1，实际 %d", p.Period)
	}
	if p.Lower >= p.Upper {
		return nil, fmt.Errorf("rsi_mean_reversion: lower(%.2f) 必须小于 upper(%.2f)", p.Lower, p.Upper)
	}
	return &RSIMeanReversion{period: p.Period, lower: p.Lower, upper: p.Upper}, nil
}

func (s *RSIMeanReversion) Name() string { return "rsi_mean_reversion" }

func (s *RSIMeanReversion) GenerateSignals(bars market.Candles) (*Output, error) {
	warmup := s.period + 1
	if len(bars) <= warmup {
		return nil, fmt.Errorf("rsi_mean_reversion: K 线不足，需 > %d 根，实际 %d", warmup, len(bars))
	}
	closes := bars.Closes()
	series := talib.Rsi(closes, s.period)
	if len(series) != len(bars) {
		return nil, fmt.Errorf("rsi_mean_reversion: 指标长度 %d 与 K 线数 %d 不一致", len(series), len(bars))
	}

	// 超卖买入、超买清仓，其余延续上一根的仓位
	positions := make([]float64, len(bars))
	for i := range bars {
		switch {
		case series[i] == 0:
			// 预热区，talib 输出 0 占位
			positions[i] = 0
		case series[i] < s.lower:
			positions[i] = 1
		case series[i] > s.upper:
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
