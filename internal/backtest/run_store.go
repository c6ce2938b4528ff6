package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"strata/internal/engine"
)

type runModel struct {
	ID              string `gorm:"primaryKey;size:36"`
	Symbol          string `gorm:"index;size:32"`
	Timeframe       string `gorm:"size:8"`
	Strategy        string `gorm:"size:64"`
	Preset          string `gorm:"size:64"`
	Status          string `gorm:"index;size:16"`
	StartTS         int64
	EndTS           int64
	InitialCapital  float64
	FinalCapital    float64
	ReturnPct       float64
	MaxDrawdown     float64
	Sharpe          float64
	WinRate         float64
	TradeCount      int
	Message         string
	ParamsJSON      datatypes.JSON
	MetricsJSON     datatypes.JSON
	AttributionJSON datatypes.JSON
	AlertsJSON      datatypes.JSON
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func (runModel) TableName() string { return "backtest_runs" }

type tradeModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"index;size:36"`
	Timestamp   int64
	Side        string `gorm:"size:8"`
	TradeType   string `gorm:"size:32"`
	Price       float64
	Qty         float64
	Amount      float64
	Fee         float64
	AvgPrice    float64
	NAV         float64
	Drawdown    float64
	CurrentQty  float64
	CurrentCash float64
	ClosePrice  float64
	RealizedPnL *float64
}

func (tradeModel) TableName() string { return "backtest_trades" }

type navModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"index;size:36"`
	Timestamp int64
	NAV       float64
	Drawdown  float64
}

func (navModel) TableName() string { return "backtest_nav" }

// RunStore 用 Gorm + SQLite 持久化回测任务与明细。
type RunStore struct {
	db *gorm.DB
}

func NewRunStore(path string) (*RunStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("run store 路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &navModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：允许少量并发读，写路径仍然串行
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &RunStore{db: db}, nil
}

func (s *RunStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateRun 写入初始 run 记录。
func (s *RunStore) CreateRun(ctx context.Context, run Run) error {
	model, err := runToModel(run)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// UpdateStatus 更新 run 状态与提示信息。
func (s *RunStore) UpdateStatus(ctx context.Context, id, status, message string) error {
	updates := map[string]any{
		"status":     status,
		"message":    message,
		"updated_at": time.Now(),
	}
	return s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates).Error
}

// SaveResult 在单个事务里落结果汇总与成交/净值明细。
func (s *RunStore) SaveResult(ctx context.Context, run Run, result *engine.Result) error {
	if result == nil {
		return fmt.Errorf("result 不能为空")
	}
	model, err := runToModel(run)
	if err != nil {
		return err
	}
	if model.MetricsJSON, err = json.Marshal(result.Metrics); err != nil {
		return err
	}
	if model.AttributionJSON, err = json.Marshal(result.ByType); err != nil {
		return err
	}
	if model.AlertsJSON, err = json.Marshal(result.Alerts); err != nil {
		return err
	}

	trades := make([]tradeModel, 0, len(result.Trades))
	for _, t := range result.Trades {
		trades = append(trades, tradeModel{
			RunID:       run.ID,
			Timestamp:   t.Timestamp,
			Side:        string(t.Side),
			TradeType:   string(t.Type),
			Price:       t.Price,
			Qty:         t.Qty,
			Amount:      t.Amount,
			Fee:         t.Fee,
			AvgPrice:    t.AvgPrice,
			NAV:         t.NAV,
			Drawdown:    t.Drawdown,
			CurrentQty:  t.CurrentQty,
			CurrentCash: t.CurrentCash,
			ClosePrice:  t.ClosePrice,
			RealizedPnL: t.RealizedPnL,
		})
	}
	navs := make([]navModel, 0, len(result.NAV))
	for _, p := range result.NAV {
		navs = append(navs, navModel{RunID: run.ID, Timestamp: p.Timestamp, NAV: p.NAV, Drawdown: p.Drawdown})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":           run.Status,
			"message":          run.Message,
			"final_capital":    run.FinalCapital,
			"return_pct":       run.ReturnPct,
			"max_drawdown":     run.MaxDrawdown,
			"sharpe":           run.Sharpe,
			"win_rate":         run.WinRate,
			"trade_count":      run.TradeCount,
			"metrics_json":     model.MetricsJSON,
			"attribution_json": model.AttributionJSON,
			"alerts_json":      model.AlertsJSON,
			"updated_at":       time.Now(),
			"completed_at":     model.CompletedAt,
		}
		if err := tx.Model(&runModel{}).Where("id = ?", run.ID).Updates(updates).Error; err != nil {
			return err
		}
		if len(trades) > 0 {
			if err := tx.CreateInBatches(trades, 500).Error; err != nil {
				return err
			}
		}
		if len(navs) > 0 {
			if err := tx.CreateInBatches(navs, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRun 按 ID 读取 run。
func (s *RunStore) GetRun(ctx context.Context, id string) (Run, error) {
	var model runModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return Run{}, err
	}
	return modelToRun(model)
}

// ListRuns 按创建时间倒序列出 run。
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		run, err := modelToRun(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// Trades 返回某 run 的全部成交（时间升序）。
func (s *RunStore) Trades(ctx context.Context, runID string) ([]engine.Trade, error) {
	var models []tradeModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("timestamp ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]engine.Trade, 0, len(models))
	for _, m := range models {
		out = append(out, engine.Trade{
			Timestamp:   m.Timestamp,
			Side:        engine.TradeSide(m.Side),
			Type:        engine.SignalType(m.TradeType),
			Price:       m.Price,
			Qty:         m.Qty,
			Amount:      m.Amount,
			Fee:         m.Fee,
			AvgPrice:    m.AvgPrice,
			NAV:         m.NAV,
			Drawdown:    m.Drawdown,
			CurrentQty:  m.CurrentQty,
			CurrentCash: m.CurrentCash,
			ClosePrice:  m.ClosePrice,
			RealizedPnL: m.RealizedPnL,
		})
	}
	return out, nil
}

// Equity 返回某 run 的资金曲线（时间升序）。
func (s *RunStore) Equity(ctx context.Context, runID string) ([]engine.NAVPoint, error) {
	var models []navModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("timestamp ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]engine.NAVPoint, 0, len(models))
	for _, m := range models {
		out = append(out, engine.NAVPoint{Timestamp: m.Timestamp, NAV: m.NAV, Drawdown: m.Drawdown})
	}
	return out, nil
}

// Metrics 返回某 run 的完整指标表。
func (s *RunStore) Metrics(ctx context.Context, runID string) (map[string]float64, error) {
	var model runModel
	if err := s.db.WithContext(ctx).Select("metrics_json").First(&model, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	metrics := map[string]float64{}
	if len(model.MetricsJSON) > 0 {
		if err := json.Unmarshal(model.MetricsJSON, &metrics); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

// Attribution 返回按信号类型归因的收益统计。
func (s *RunStore) Attribution(ctx context.Context, runID string) (map[engine.SignalType]engine.TypeAttribution, error) {
	var model runModel
	if err := s.db.WithContext(ctx).Select("attribution_json").First(&model, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	attr := map[engine.SignalType]engine.TypeAttribution{}
	if len(model.AttributionJSON) > 0 {
		if err := json.Unmarshal(model.AttributionJSON, &attr); err != nil {
			return nil, err
		}
	}
	return attr, nil
}

func runToModel(run Run) (runModel, error) {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return runModel{}, err
	}
	model := runModel{
		ID:             run.ID,
		Symbol:         strings.ToUpper(run.Symbol),
		Timeframe:      strings.ToLower(run.Timeframe),
		Strategy:       run.Strategy,
		Preset:         run.Preset,
		Status:         run.Status,
		StartTS:        run.StartTS,
		EndTS:          run.EndTS,
		InitialCapital: run.InitialCapital,
		FinalCapital:   run.FinalCapital,
		ReturnPct:      run.ReturnPct,
		MaxDrawdown:    run.MaxDrawdown,
		Sharpe:         run.Sharpe,
		WinRate:        run.WinRate,
		TradeCount:     run.TradeCount,
		Message:        run.Message,
		ParamsJSON:     paramsJSON,
		CreatedAt:      run.CreatedAt,
		UpdatedAt:      run.UpdatedAt,
	}
	if !run.CompletedAt.IsZero() {
		t := run.CompletedAt
		model.CompletedAt = &t
	}
	return model, nil
}

func modelToRun(m runModel) (Run, error) {
	run := Run{
		ID:             m.ID,
		Symbol:         m.Symbol,
		Timeframe:      m.Timeframe,
		Strategy:       m.Strategy,
		Preset:         m.Preset,
		Status:         m.Status,
		StartTS:        m.StartTS,
		EndTS:          m.EndTS,
		InitialCapital: m.InitialCapital,
		FinalCapital:   m.FinalCapital,
		ReturnPct:      m.ReturnPct,
		MaxDrawdown:    m.MaxDrawdown,
		Sharpe:         m.Sharpe,
		WinRate:        m.WinRate,
		TradeCount:     m.TradeCount,
		Message:        m.Message,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if len(m.ParamsJSON) > 0 {
		if err := json.Unmarshal(m.ParamsJSON, &run.Params); err != nil {
			return Run{}, fmt.Errorf("run %s 参数反序列化失败: %w", m.ID, err)
		}
	}
	if m.CompletedAt != nil {
		run.CompletedAt = *m.CompletedAt
	}
	return run, nil
}
