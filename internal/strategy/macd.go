package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"strata/internal/engine"
	"strata/internal/market"
)

func init() {
	Register("macd_crossover", newMACDCrossover)
}

// MACDParams 控制快慢线与信号线周期。
type MACDParams struct {
	Fast   int `toml:"fast"`
	Slow   int `toml:"slow"`
	Signal int `toml:"signal"`
}

// MACDCrossover 在 MACD 上穿信号线时满仓、下穿时空仓。
// 信号整体后移一根：当根 K 线只能用上一根收盘算出的指标。
type MACDCrossover struct {
	fast   int
	slow   int
	signal int
}

func newMACDCrossover(params map[string]any) (Strategy, error) {
	p := MACDParams{Fast: 12, Slow: 26, Signal: 9}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Fast <= 0 || p.Slow <= 0 || p.Signal <= 0 {
		return nil, fmt.Errorf("macd_crossover: 周期必须为正: fast=%d slow=%d signal=%d", p.Fast, p.Slow, p.Signal)
	}
	if p.Fast >= p.Slow {
		return nil, fmt.Errorf("macd_crossover: fast(%d) 必须小于 slow(%d)", p.Fast, p.Slow)
	}
	return &MACDCrossover{fast: p.Fast, slow: p.Slow, signal: p.Signal}, nil
}

func (s *MACDCrossover) Name() string { return "macd_crossover" }

func (s *MACDCrossover) GenerateSignals(bars market.Candles) (*Output, error) {
	warmup := s.slow + s.signal
	if len(bars) <= warmup {
		return nil, fmt.Errorf("macd_crossover: K 线不足，需 > %d 根，实际 %d", warmup, len(bars))
	}
	closes := bars.Closes()
	macd, signalLine, _ := talib.Macd(closes, s.fast, s.slow, s.signal)
	if len(macd) != len(bars) {
		return nil, fmt.Errorf("macd_crossover: 指标长度 %d 与 K 线数 %d 不一致", len(macd), len(bars))
	}

	positions := make([]float64, len(bars))
	for i := range bars {
		if macd[i] > signalLine[i] {
			positions[i] = 1
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
