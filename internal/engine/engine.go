package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"strata/internal/logger"
	"strata/internal/market"
)

// ErrNoBars 表示输入 K 线序列为空（致命输入错误）。
var ErrNoBars = errors.New("K 线序列为空")

// RunContext 携带 run 级别的日志能力，替代进程级日志开关：
// Logf 为 nil 时走全局 logger 的 debug 通道，Quiet 则完全静默。
type RunContext struct {
	RunID string
	Quiet bool
	Logf  func(format string, v ...any)
}

func (rc RunContext) logf(format string, v ...any) {
	if rc.Quiet {
		return
	}
	if rc.Logf != nil {
		rc.Logf(format, v...)
		return
	}
	logger.Debugf("[run %s] "+format, append([]any{rc.RunID}, v...)...)
}

// Engine 逐根 K 线把目标仓位信号推演为成交流与资金曲线。
// 严格单线程顺序执行：每根 K 线依赖上一根留下的状态。
type Engine struct {
	params    Params
	book      *PositionBook
	risk      *RiskPolicy
	admission *AdmissionPolicy
	rc        RunContext
}

func New(params Params, rc RunContext) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("引擎参数无效: %w", err)
	}
	return &Engine{
		params:    params,
		book:      NewPositionBook(params.InitialCapital),
		risk:      NewRiskPolicy(params.StopLossPct, params.TakeProfitPct, params.MaxPosition),
		admission: NewAdmissionPolicy(params),
		rc:        rc,
	}, nil
}

// Book 暴露只读访问，供服务层查询中间状态。
func (e *Engine) Book() *PositionBook { return e.book }

// Run 执行一次完整回测。失败时仍返回带 Failed 标记的部分结果，
// 调用方必须检查 Result.Failed 而不是只看 error。
func (e *Engine) Run(ctx context.Context, bars market.Candles, signals []Signal) (*Result, error) {
	result := &Result{
		RunID:  e.rc.RunID,
		Params: e.params,
	}
	if len(bars) == 0 {
		result.Failed = true
		result.FailReason = ErrNoBars.Error()
		return result, ErrNoBars
	}
	for _, s := range signals {
		if err := s.Validate(); err != nil {
			result.Failed = true
			result.FailReason = err.Error()
			return result, fmt.Errorf("信号序列无效: %w", err)
		}
	}

	signalsByTS := make(map[int64]Signal, len(signals))
	for _, s := range signals {
		signalsByTS[s.Timestamp] = s
	}
	matched := 0

	peak := math.Inf(-1)
	var prev *market.Candle

	for i := range bars {
		select {
		case <-ctx.Done():
			result.Failed = true
			result.FailReason = ctx.Err().Error()
			result.FinishedAt = time.Now()
			e.finalize(result)
			return result, ctx.Err()
		default:
		}

		bar := bars[i]
		price := bar.Close
		nav := e.book.NAV(price)
		if nav > peak {
			peak = nav
		}
		drawdown := 0.0
		if peak > 0 {
			drawdown = nav/peak - 1
		}
		result.NAV = append(result.NAV, NAVPoint{Timestamp: bar.Timestamp(), NAV: nav, Drawdown: drawdown})

		if math.IsNaN(price) || price <= 0 {
			// 降级：这根 K 线跳过交易逻辑，净值已按现金回退记录
			e.rc.logf("bar %d 价格非法(%v)，跳过交易逻辑", i, price)
			prev = &bars[i]
			continue
		}

		sig, ok := signalsByTS[bar.Timestamp()]
		if !ok {
			prev = &bars[i]
			continue
		}
		matched++

		currentPosition := e.book.PositionRatio(price)
		isOverride, reason, finalTarget := e.risk.Check(e.book.Qty(), e.book.AvgPrice(), price, sig.TargetPosition)
		sigType := sig.Type
		if sigType == "" {
			sigType = SignalNormal
		}
		if isOverride {
			e.rc.logf("风控覆盖: %s, 目标仓位 %.4f -> %.4f", reason, sig.TargetPosition, finalTarget)
			sigType = reason
		} else {
			// 风控未触发时才走准入规则
			admit, admitReason := e.admission.ShouldTrade(finalTarget, currentPosition, nav, i)
			if !admit {
				e.rc.logf("跳过交易: %s | 目标仓位 %.4f", admitReason, finalTarget)
				prev = &bars[i]
				continue
			}
		}

		deltaQty := e.sizeOrder(finalTarget, sigType, price, nav)
		if math.Abs(deltaQty) < epsilon {
			e.rc.logf("跳过交易: 量化后数量为零 | 目标仓位 %.4f", finalTarget)
			prev = &bars[i]
			continue
		}

		slippage := DynamicSlippage(bar, prev, e.params.Slippage)
		execPrice := ExecutionPrice(price, slippage, deltaQty > 0)

		if !e.book.CanAfford(deltaQty, execPrice, e.params.FeeRate) {
			if deltaQty > 0 {
				maxQty := e.book.Cash() / (execPrice * (1 + e.params.FeeRate))
				deltaQty = math.Min(deltaQty, maxQty)
			} else {
				deltaQty = -e.book.Qty()
			}
			if math.Abs(deltaQty) < epsilon {
				e.rc.logf("跳过交易: 资金不足")
				prev = &bars[i]
				continue
			}
		}

		fee, realizedPnL := e.book.ExecuteTrade(deltaQty, execPrice, e.params.FeeRate)
		e.admission.MarkTraded(i)

		postNAV := e.book.NAV(price)
		if postNAV > peak {
			peak = postNAV
		}
		tradeDrawdown := 0.0
		if peak > 0 {
			tradeDrawdown = postNAV/peak - 1
		}
		side := SideBuy
		if deltaQty < 0 {
			side = SideSell
		}
		trade := Trade{
			Timestamp:   bar.Timestamp(),
			Side:        side,
			Type:        sigType,
			Price:       execPrice,
			Qty:         deltaQty,
			Amount:      math.Abs(deltaQty * execPrice),
			Fee:         fee,
			AvgPrice:    e.book.AvgPrice(),
			NAV:         postNAV,
			Drawdown:    tradeDrawdown,
			CurrentQty:  e.book.Qty(),
			CurrentCash: e.book.Cash(),
			ClosePrice:  price,
			RealizedPnL: realizedPnL,
		}
		result.Trades = append(result.Trades, trade)
		e.rc.logf("成交: %s | 价格 %.4f | 数量 %.4f | 金额 %.2f | 类型 %s",
			side, trade.Price, trade.Qty, trade.Amount, trade.Type)

		prev = &bars[i]
	}

	if matched < len(signals) {
		result.Alerts = append(result.Alerts,
			fmt.Sprintf("%d 个信号没有匹配到 K 线时间戳", len(signals)-matched))
	}
	result.FinishedAt = time.Now()
	e.finalize(result)
	return result, nil
}

// sizeOrder 计算带量化的交易数量。风控驱动的交易同样经过 lot_size
// 量化，但止损（目标仓位 0）在量化会留下低于最小交易数量的残余
// 仓位时改为清空全部持仓。
func (e *Engine) sizeOrder(targetPosition float64, sigType SignalType, price, nav float64) float64 {
	deltaQty := e.admission.TradeQuantity(targetPosition, e.book.Qty(), price, nav)
	if sigType != SignalStopLoss || targetPosition != 0 {
		return deltaQty
	}
	residual := e.book.Qty() + deltaQty
	if residual > epsilon && residual < math.Max(e.params.MinTradeQty, e.params.LotSize) {
		return -e.book.Qty()
	}
	if deltaQty == 0 && e.book.Qty() > epsilon {
		return -e.book.Qty()
	}
	return deltaQty
}

func (e *Engine) finalize(result *Result) {
	result.Metrics = ComputeMetrics(result.NAV, e.params.InitialCapital, result.Trades)
	result.ByType = AttributeByType(result.Trades)
}
