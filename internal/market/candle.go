package market

import (
	"fmt"
	"math"
	"time"
)

// Candle 表示单根 K 线，时间为 Unix 毫秒。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

func (c Candle) TimeString() string {
	ts := c.CloseTime
	if ts == 0 {
		ts = c.OpenTime
	}
	if ts <= 0 {
		return "-"
	}
	return time.UnixMilli(ts).UTC().Format("2006-01-02 15:04") + "Z"
}

// Validate 在加载边界拒绝 NaN/Inf，避免污染后续计算。
func (c Candle) Validate() error {
	fields := [...]struct {
		name string
		val  float64
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
		{"volume", c.Volume},
	}
	for _, f := range fields {
		if math.IsNaN(f.val) || math.IsInf(f.val, 0) {
			return fmt.Errorf("candle %s 字段 %s 非法: %v", c.TimeString(), f.name, f.val)
		}
	}
	if c.CloseTime <= 0 && c.OpenTime <= 0 {
		return fmt.Errorf("candle 缺少时间戳")
	}
	return nil
}

// Timestamp 返回用于信号匹配的时间戳（优先 close time）。
func (c Candle) Timestamp() int64 {
	if c.CloseTime > 0 {
		return c.CloseTime
	}
	return c.OpenTime
}

type Candles []Candle

// ValidateSeries 校验整个序列并要求时间戳非递减。
func ValidateSeries(cs Candles) error {
	if len(cs) == 0 {
		return fmt.Errorf("candle 序列为空")
	}
	var prev int64
	for i, c := range cs {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("第 %d 根: %w", i, err)
		}
		ts := c.Timestamp()
		if ts < prev {
			return fmt.Errorf("第 %d 根时间戳回退: %d < %d", i, ts, prev)
		}
		prev = ts
	}
	return nil
}

// Closes 提取收盘价序列，供指标计算使用。
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func (cs Candles) Highs() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

func (cs Candles) Lows() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}
