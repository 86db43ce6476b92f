package junction

import (
	"sync"
	"sync/atomic"

	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/randengine"
)

const (
	minSignalDegree = 4 // 度数不小于该值的路口设置信号灯

	adaptInterval = 100 // 自适应配时间隔（步）
	highScore     = 20  // 拥堵分数高于该值时延长周期
	lowScore      = 5   // 拥堵分数低于该值时缩短周期
	cycleUp       = 10  // 周期延长量
	cycleDown     = 5   // 周期缩短量
	minCycle      = 20  // 周期下限
	maxCycle      = 120 // 周期上限

	colorGreen = "#00ff00"
	colorRed   = "#ff0000"
)

// 信号灯管理器
type Manager struct {
	mapv2connect.UnimplementedTrafficLightServiceHandler

	ctx entity.ITaskContext

	// 保护周期与拥堵分数的写入，仅供RPC读取时同步
	// 仿真主协程是唯一的写入者，自身读取无需加锁
	mu sync.RWMutex

	signals  []*Signal
	data     map[road.NodeID]*Signal
	display  []*Signal // 展示用子集
	adaptive bool
	avgCycle float64

	defaultCycle int32
	tick         atomic.Int64 // 最近一次Adapt调用的步数，供RPC计算相位
}

// NewManager 创建信号灯管理器实例
// 参数：ctx-任务上下文
// 返回：新创建的信号灯管理器实例
func NewManager(ctx entity.ITaskContext) *Manager {
	return &Manager{
		ctx:          ctx,
		signals:      make([]*Signal, 0),
		data:         make(map[road.NodeID]*Signal),
		display:      make([]*Signal, 0),
		defaultCycle: ctx.RuntimeConfig().C.Signal.DefaultCycle,
	}
}

// Init 为路网中的路口创建信号灯
// 功能：度数大于3的路口设置信号灯，周期为默认周期，相位偏移在[0, 默认周期)内随机
// 参数：network-路网，generator-随机数引擎
// 说明：信号灯数量超过展示上限时无放回抽取展示子集
func (m *Manager) Init(network *road.Network, generator *randengine.Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodes := lo.Filter(network.Nodes(), func(n *road.Node, _ int) bool {
		return n.Degree() >= minSignalDegree
	})
	m.signals = lo.Map(nodes, func(n *road.Node, _ int) *Signal {
		return newSignal(n, m.defaultCycle, generator.Int31n(m.defaultCycle))
	})
	m.data = lo.SliceToMap(m.signals, func(s *Signal) (road.NodeID, *Signal) {
		return s.Node(), s
	})

	limit := m.ctx.RuntimeConfig().C.Signal.MaxLightsSent
	if len(m.signals) > limit {
		m.display = lo.Map(generator.Sample(len(m.signals), limit), func(i int, _ int) *Signal {
			return m.signals[i]
		})
	} else {
		m.display = m.signals
	}
	m.avgCycle = float64(m.defaultCycle)
	log.Infof("%d signals created on %d nodes, %d displayed", len(m.signals), network.NumNodes(), len(m.display))
}

// Get 根据路口ID获取信号灯
func (m *Manager) Get(node road.NodeID) (*Signal, bool) {
	s, ok := m.data[node]
	return s, ok
}

// Len 信号灯数量
func (m *Manager) Len() int {
	return len(m.signals)
}

// IsGreen 查询路口在第t步的灯色
func (m *Manager) IsGreen(node road.NodeID, t int64) (green bool, hasSignal bool) {
	s, ok := m.data[node]
	if !ok {
		return false, false
	}
	return s.IsGreen(t), true
}

// AddCongestion 累加拥堵分数
func (m *Manager) AddCongestion(node road.NodeID, w float64) {
	s, ok := m.data[node]
	if !ok {
		return
	}
	m.mu.Lock()
	s.congestion += w
	m.mu.Unlock()
}

// Adapt 自适应配时
// 功能：按拥堵分数调整所有信号灯的周期
// 参数：t-当前步数
// 返回：本步是否执行了配时
// 算法说明：
// 1. 仅在开启自适应配时且t为间隔整数倍时执行
// 2. 分数高于highScore时周期延长cycleUp（不超过maxCycle），低于lowScore时缩短cycleDown（不低于minCycle）
// 3. 无论是否调整，拥堵分数都清零
// 4. 重新计算平均周期
func (m *Manager) Adapt(t int64) bool {
	m.tick.Store(t)
	if !m.adaptive || t%adaptInterval != 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.signals {
		switch {
		case s.congestion > highScore:
			s.cycle = min(maxCycle, s.cycle+cycleUp)
		case s.congestion < lowScore:
			s.cycle = max(minCycle, s.cycle-cycleDown)
		}
		s.congestion = 0
	}
	m.updateAverage()
	return true
}

func (m *Manager) updateAverage() {
	if len(m.signals) == 0 {
		return
	}
	m.avgCycle = lo.SumBy(m.signals, func(s *Signal) float64 {
		return float64(s.cycle)
	}) / float64(len(m.signals))
}

func (m *Manager) SetAdaptive(enabled bool) {
	m.adaptive = enabled
}

func (m *Manager) Adaptive() bool {
	return m.adaptive
}

// AverageCycle 平均周期
func (m *Manager) AverageCycle() float64 {
	return m.avgCycle
}

// Lights 展示子集在第t步的灯色
func (m *Manager) Lights(t int64) []entity.Light {
	return lo.Map(m.display, func(s *Signal, _ int) entity.Light {
		color := colorRed
		if s.IsGreen(t) {
			color = colorGreen
		}
		return entity.Light{X: s.x, Y: s.y, Color: color}
	})
}

// Reset 新一轮仿真开始前重置
// 功能：周期恢复默认值，拥堵分数清零，相位偏移保持不变
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.signals {
		s.cycle = m.defaultCycle
		s.congestion = 0
	}
	m.avgCycle = float64(m.defaultCycle)
	m.tick.Store(0)
}
