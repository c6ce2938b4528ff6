package app

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"strata/internal/backtest"
	"strata/internal/config"
	"strata/internal/logger"
	"strata/internal/preset"
)

// App 组装回测服务的全部组件：K 线存储、拉取服务、模拟器与 HTTP 接口。
type App struct {
	cfg     *config.Config
	store   *backtest.Store
	runs    *backtest.RunStore
	presets *preset.Registry
	svc     *backtest.Service
	sim     *backtest.Simulator
	httpSrv *backtest.HTTPServer
}

func NewApp(cfg *config.Config) (*App, error) {
	store, err := backtest.NewStore(filepath.Join(cfg.App.DataDir, "candles"))
	if err != nil {
		return nil, fmt.Errorf("初始化 K 线存储失败: %w", err)
	}
	runs, err := backtest.NewRunStore(filepath.Join(cfg.App.DataDir, "runs.db"))
	if err != nil {
		return nil, fmt.Errorf("初始化结果存储失败: %w", err)
	}

	var presets *preset.Registry
	if cfg.Presets.Path != "" {
		presets, err = preset.NewRegistry(cfg.Presets.Path)
		if err != nil {
			// 预设是可选能力，缺失时仍可用 strategy 直连方式回测
			logger.Warnf("预设文件加载失败，将以无预设模式运行: %v", err)
			presets = nil
		}
	}

	svc, err := backtest.NewService(backtest.ServiceConfig{
		Store: store,
		Sources: map[string]backtest.CandleSource{
			"binance": backtest.NewBinanceSource(cfg.Binance.BaseURL),
		},
		DefaultExchange: "binance",
		RateLimitPerMin: cfg.Binance.RateLimitPerMin,
		MaxBatch:        cfg.Binance.MaxBatch,
		MaxConcurrent:   cfg.Backtest.MaxConcurrentRuns,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化拉取服务失败: %w", err)
	}

	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		Store:             store,
		Runs:              runs,
		Presets:           presets,
		Defaults:          cfg.Backtest,
		MaxConcurrentRuns: cfg.Backtest.MaxConcurrentRuns,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化模拟器失败: %w", err)
	}

	httpSrv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:      cfg.App.HTTPAddr,
		Svc:       svc,
		Simulator: sim,
		Results:   runs,
		Presets:   presets,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   store,
		runs:    runs,
		presets: presets,
		svc:     svc,
		sim:     sim,
		httpSrv: httpSrv,
	}, nil
}

// Run 启动 HTTP 服务并阻塞，直到 ctx 取消；退出前关闭底层存储。
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	a.svc.SetContext(ctx)
	a.sim.SetContext(ctx)

	group.Go(func() error {
		logger.Infof("HTTP 服务监听 %s", a.cfg.App.HTTPAddr)
		return a.httpSrv.Start(ctx)
	})

	err := group.Wait()
	if closeErr := a.store.Close(); closeErr != nil {
		logger.Warnf("关闭 K 线存储失败: %v", closeErr)
	}
	if closeErr := a.runs.Close(); closeErr != nil {
		logger.Warnf("关闭结果存储失败: %v", closeErr)
	}
	logger.Infof("服务退出")
	return err
}
