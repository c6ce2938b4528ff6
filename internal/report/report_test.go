package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/engine"
)

func TestRender(t *testing.T) {
	data := Data{
		Title: "BTCUSDT 1h grid",
		NAV: []engine.NAVPoint{
			{Timestamp: 1700000000000, NAV: 100000},
			{Timestamp: 1700003600000, NAV: 100500, Drawdown: 0},
			{Timestamp: 1700007200000, NAV: 99800, Drawdown: -0.00697},
		},
		Trades: []engine.Trade{
			{Timestamp: 1700003600000, Side: engine.SideBuy, NAV: 100500},
		},
		Metrics: map[string]float64{
			"final_return": -0.002,
			"max_drawdown": -0.00697,
			"trade_count":  1,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, data))
	html := buf.String()
	assert.Contains(t, html, "BTCUSDT 1h grid")
	assert.Contains(t, html, "净值")
	assert.Contains(t, html, "final_return")
}

func TestRender_EmptyNAV(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Data{Title: "empty"})
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}
