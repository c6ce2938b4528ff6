package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"strata/internal/config"
	"strata/internal/engine"
	"strata/internal/logger"
	"strata/internal/market"
	"strata/internal/preset"
	"strata/internal/strategy"
)

// 单次参数扫描允许的最大组合数，防止笛卡尔积爆炸。
const maxSweepRuns = 200

// SimulatorConfig 配置回测模拟器。
type SimulatorConfig struct {
	Store             *Store
	Runs              *RunStore
	Presets           *preset.Registry // 可选
	Defaults          config.BacktestConfig
	MaxConcurrentRuns int
}

// Simulator 负责 run 的生命周期：校验请求、异步执行、落库。
type Simulator struct {
	store         *Store
	runs          *RunStore
	presets       *preset.Registry
	defaults      config.BacktestConfig
	maxConcurrent int

	sem     chan struct{}
	baseCtx context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("candle store 不能为空")
	}
	if cfg.Runs == nil {
		return nil, fmt.Errorf("run store 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrentRuns
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Simulator{
		store:         cfg.Store,
		runs:          cfg.Runs,
		presets:       cfg.Presets,
		defaults:      cfg.Defaults,
		maxConcurrent: maxConcurrent,
		sem:           make(chan struct{}, maxConcurrent),
		baseCtx:       context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// preparedRun 是一次通过校验、尚未执行的 run。
type preparedRun struct {
	run   Run
	tf    Timeframe
	strat strategy.Strategy
}

// prepare 同步完成全部校验：周期、策略/预设、引擎参数。
// 失败在提交阶段就返回，不产生 run 记录。
func (s *Simulator) prepare(req RunRequest) (preparedRun, error) {
	tf, err := ParseTimeframe(req.Timeframe)
	if err != nil {
		return preparedRun{}, err
	}
	start, end := tf.AlignRange(req.StartTS, req.EndTS)
	if start == end {
		return preparedRun{}, fmt.Errorf("start 与 end 需要构成区间")
	}

	strategyName := req.Strategy
	strategyParams := req.StrategyParams
	var engineOverride map[string]any
	if req.Preset != "" {
		if s.presets == nil {
			return preparedRun{}, fmt.Errorf("预设功能未启用")
		}
		name, merged, err := s.presets.Resolve(req.Preset, req.StrategyParams)
		if err != nil {
			return preparedRun{}, err
		}
		strategyName = name
		strategyParams = merged
		if p, ok := s.presets.Preset(req.Preset); ok {
			engineOverride = p.Engine
		}
	}
	if strategyName == "" {
		return preparedRun{}, fmt.Errorf("strategy 或 preset 必填其一")
	}
	strat, err := strategy.New(strategyName, strategyParams)
	if err != nil {
		return preparedRun{}, err
	}

	params := engine.ParamsFromConfig(s.defaults)
	if len(engineOverride) > 0 {
		raw, err := json.Marshal(engineOverride)
		if err != nil {
			return preparedRun{}, err
		}
		if err := params.MergeJSON(raw); err != nil {
			return preparedRun{}, fmt.Errorf("预设引擎参数无效: %w", err)
		}
	}
	if len(req.EngineParams) > 0 {
		if err := params.MergeJSON(req.EngineParams); err != nil {
			return preparedRun{}, fmt.Errorf("引擎参数无效: %w", err)
		}
	}

	now := time.Now()
	run := Run{
		ID:             uuid.NewString(),
		Symbol:         req.Symbol,
		Timeframe:      tf.Key,
		Strategy:       strategyName,
		Preset:         req.Preset,
		Status:         RunStatusPending,
		StartTS:        start,
		EndTS:          end,
		InitialCapital: params.InitialCapital,
		Params:         params,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return preparedRun{run: run, tf: tf, strat: strat}, nil
}

// StartRun 提交一次回测并异步执行，返回 pending 状态的 run。
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	prep, err := s.prepare(req)
	if err != nil {
		return Run{}, err
	}
	if err := s.runs.CreateRun(s.ctx(), prep.run); err != nil {
		return Run{}, err
	}
	logger.Infof("[run %s] 提交：%s %s %s [%d,%d]",
		prep.run.ID, prep.run.Symbol, prep.run.Timeframe, prep.run.Strategy, prep.run.StartTS, prep.run.EndTS)
	go s.runLoop(prep)
	return prep.run, nil
}

// StartSweep 把 Grid 展开成笛卡尔积并为每组参数提交一个 run。
// 返回全部已创建的 run；执行由 errgroup 限流推进。
func (s *Simulator) StartSweep(req SweepRequest) ([]Run, error) {
	combos := expandGrid(req.Grid)
	if len(combos) == 0 {
		return nil, fmt.Errorf("grid 不能为空")
	}
	if len(combos) > maxSweepRuns {
		return nil, fmt.Errorf("组合数 %d 超过上限 %d", len(combos), maxSweepRuns)
	}

	prepared := make([]preparedRun, 0, len(combos))
	for _, combo := range combos {
		r := req.Base
		merged := make(map[string]any, len(r.StrategyParams)+len(combo))
		for k, v := range r.StrategyParams {
			merged[k] = v
		}
		for k, v := range combo {
			merged[k] = v
		}
		r.StrategyParams = merged
		prep, err := s.prepare(r)
		if err != nil {
			return nil, fmt.Errorf("参数组合 %v 无效: %w", combo, err)
		}
		prepared = append(prepared, prep)
	}

	runs := make([]Run, 0, len(prepared))
	for _, prep := range prepared {
		if err := s.runs.CreateRun(s.ctx(), prep.run); err != nil {
			return nil, err
		}
		runs = append(runs, prep.run)
	}
	logger.Infof("[sweep] 提交 %d 个 run，并发上限 %d", len(prepared), s.maxConcurrent)

	go func() {
		g := new(errgroup.Group)
		g.SetLimit(s.maxConcurrent)
		for _, prep := range prepared {
			prep := prep
			g.Go(func() error {
				s.runSync(prep)
				return nil
			})
		}
		_ = g.Wait()
		logger.Infof("[sweep] 全部 %d 个 run 执行结束", len(prepared))
	}()
	return runs, nil
}

func (s *Simulator) runLoop(prep preparedRun) {
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx().Done():
		s.fail(prep.run.ID, "服务已关闭")
		return
	}
	defer func() { <-s.sem }()
	s.runSync(prep)
}

// runSync 同步执行一次回测并落库；调用方负责并发控制。
func (s *Simulator) runSync(prep preparedRun) {
	ctx := s.ctx()
	run := prep.run
	if err := s.runs.UpdateStatus(ctx, run.ID, RunStatusRunning, ""); err != nil {
		logger.Errorf("[run %s] 状态更新失败: %v", run.ID, err)
	}

	result, err := s.execute(ctx, run, prep.strat)
	if result == nil {
		msg := "未知错误"
		if err != nil {
			msg = err.Error()
		}
		s.fail(run.ID, msg)
		return
	}

	summarize(&run, result)
	if err := s.runs.SaveResult(context.Background(), run, result); err != nil {
		logger.Errorf("[run %s] 结果落库失败: %v", run.ID, err)
		s.fail(run.ID, "结果落库失败: "+err.Error())
		return
	}
	logger.Infof("[run %s] 完成，状态=%s 成交=%d 收益=%.4f",
		run.ID, run.Status, run.TradeCount, run.ReturnPct)
}

// execute 加载数据、产出信号、驱动引擎。引擎失败时仍返回部分结果。
func (s *Simulator) execute(ctx context.Context, run Run, strat strategy.Strategy) (*engine.Result, error) {
	bars, err := s.store.RangeCandles(ctx, run.Symbol, run.Timeframe, run.StartTS, run.EndTS)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("区间内没有本地数据，请先提交 fetch 任务")
	}
	if err := market.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("本地数据损坏: %w", err)
	}

	out, err := strat.GenerateSignals(bars)
	if err != nil {
		return nil, fmt.Errorf("策略 %s 产出信号失败: %w", strat.Name(), err)
	}

	eng, err := engine.New(run.Params, engine.RunContext{RunID: run.ID})
	if err != nil {
		return nil, err
	}
	result, runErr := eng.Run(ctx, bars, out.Signals)
	if result != nil {
		result.Symbol = run.Symbol
		result.Strategy = run.Strategy
		result.GridLevels = out.GridLevels
	}
	if runErr != nil {
		logger.Warnf("[run %s] 引擎中断: %v", run.ID, runErr)
	}
	return result, runErr
}

func (s *Simulator) fail(runID, message string) {
	if err := s.runs.UpdateStatus(context.Background(), runID, RunStatusFailed, message); err != nil {
		logger.Errorf("[run %s] 失败状态落库失败: %v", runID, err)
	}
	logger.Warnf("[run %s] 失败: %s", runID, message)
}

// summarize 把引擎结果汇总进 run 记录。
func summarize(run *Run, result *engine.Result) {
	run.Status = RunStatusDone
	if result.Failed {
		run.Status = RunStatusFailed
		run.Message = result.FailReason
	}
	run.FinalCapital = result.Metrics["final_capital"]
	run.ReturnPct = result.Metrics["final_return"]
	run.MaxDrawdown = result.Metrics["max_drawdown"]
	run.Sharpe = result.Metrics["sharpe"]
	run.WinRate = result.Metrics["win_rate"]
	run.TradeCount = len(result.Trades)
	run.CompletedAt = time.Now()
	run.UpdatedAt = run.CompletedAt
}

// expandGrid 把 {k: [v...]} 展开为笛卡尔积，键序固定保证结果可复现。
func expandGrid(grid map[string][]any) []map[string]any {
	keys := make([]string, 0, len(grid))
	for k, vals := range grid {
		if len(vals) == 0 {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	combos := []map[string]any{{}}
	for _, k := range keys {
		next := make([]map[string]any, 0, len(combos)*len(grid[k]))
		for _, base := range combos {
			for _, v := range grid[k] {
				combo := make(map[string]any, len(base)+1)
				for bk, bv := range base {
					combo[bk] = bv
				}
				combo[k] = v
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}
