package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"strata/internal/engine"
	"strata/internal/market"
)

// Output 是策略对一段 K 线的全部产出。GridLevels 仅网格类策略填充，
// 用于结果页可视化。
type Output struct {
	Signals    []engine.Signal
	GridLevels []engine.GridLevel
}

// Strategy 把 K 线序列映射为目标仓位信号序列。
// 实现必须是纯函数式的：同一输入重复调用产出相同结果。
type Strategy interface {
	Name() string
	GenerateSignals(bars market.Candles) (*Output, error)
}

// Factory 按参数表构造策略实例，参数非法时返回错误。
type Factory func(params map[string]any) (Strategy, error)

var (
	registryMu sync.RWMutex
	factories  = map[string]Factory{}
)

// Register 注册策略工厂，重复注册视为编程错误。
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := factories[name]; ok {
		panic(fmt.Sprintf("strategy %q 重复注册", name))
	}
	factories[name] = f
}

// New 按名称构造策略。
func New(name string, params map[string]any) (Strategy, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未知策略: %q", name)
	}
	return f(params)
}

// Names 返回全部已注册策略名（字典序）。
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// decodeParams 把松散的参数表解码到强类型结构上，数值类型宽松转换。
func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "toml",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("策略参数解析失败: %w", err)
	}
	return nil
}
