package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"strata/internal/engine"
)

// Data 是渲染一张回测报告所需的全部输入。
type Data struct {
	Title   string
	NAV     []engine.NAVPoint
	Trades  []engine.Trade
	Metrics map[string]float64
}

// Render 输出自包含的 HTML 报告：资金曲线、回撤曲线与指标摘要。
func Render(w io.Writer, data Data) error {
	if len(data.NAV) == 0 {
		return fmt.Errorf("没有资金曲线数据")
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = data.Title

	xAxis := make([]string, len(data.NAV))
	navData := make([]opts.LineData, len(data.NAV))
	ddData := make([]opts.LineData, len(data.NAV))
	for i, p := range data.NAV {
		xAxis[i] = time.UnixMilli(p.Timestamp).UTC().Format("2006-01-02 15:04")
		navData[i] = opts.LineData{Value: p.NAV}
		ddData[i] = opts.LineData{Value: p.Drawdown * 100}
	}

	equity := charts.NewLine()
	equity.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    data.Title,
			Subtitle: metricsSummary(data.Metrics),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	equity.SetXAxis(xAxis)
	equity.AddSeries("净值", navData,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	if marks := tradeMarks(data.NAV, data.Trades); len(marks) > 0 {
		equity.AddSeries("成交", marks,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	}

	drawdown := charts.NewLine()
	drawdown.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "220px"}),
		charts.WithTitleOpts(opts.Title{Title: "回撤 (%)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	drawdown.SetXAxis(xAxis)
	drawdown.AddSeries("drawdown", ddData,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	page.AddCharts(equity, drawdown)
	return page.Render(w)
}

// tradeMarks 把成交点投影到净值曲线上；没有匹配时间戳的成交跳过。
func tradeMarks(nav []engine.NAVPoint, trades []engine.Trade) []opts.LineData {
	if len(trades) == 0 {
		return nil
	}
	index := make(map[int64]int, len(nav))
	for i, p := range nav {
		index[p.Timestamp] = i
	}
	marks := make([]opts.LineData, len(nav))
	matched := false
	for _, t := range trades {
		if i, ok := index[t.Timestamp]; ok {
			marks[i] = opts.LineData{Value: t.NAV, Symbol: "triangle", SymbolSize: 10}
			matched = true
		}
	}
	if !matched {
		return nil
	}
	return marks
}

func metricsSummary(metrics map[string]float64) string {
	if len(metrics) == 0 {
		return "无指标数据"
	}
	order := []string{"final_return", "max_drawdown", "sharpe", "win_rate", "trade_count"}
	var parts []string
	seen := make(map[string]bool)
	for _, k := range order {
		if v, ok := metrics[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%.4f", k, v))
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(metrics))
	for k := range metrics {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		parts = append(parts, fmt.Sprintf("%s=%.4f", k, metrics[k]))
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "  "
		}
		out += p
	}
	return out
}
