package vehicle

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/randengine"
)

// 车辆管理器
// 功能：管理固定规模的车队，按顺序推进所有车辆
// 说明：车辆共享道路占用与拥堵分数，必须在同一协程中串行推进
type Manager struct {
	ctx entity.ITaskContext

	generator *randengine.Engine // 为每轮仿真生成车辆随机种子
	nodes     []road.NodeID
	vehicles  []*Vehicle
}

// NewManager 创建车辆管理器实例
// 参数：ctx-任务上下文，generator-随机数引擎
// 返回：新创建的车辆管理器实例
func NewManager(ctx entity.ITaskContext, generator *randengine.Engine) *Manager {
	return &Manager{
		ctx:       ctx,
		generator: generator,
		nodes:     ctx.Network().NodeIDs(),
		vehicles:  make([]*Vehicle, 0),
	}
}

// Init 创建新的车队
// 功能：丢弃旧车队，创建n辆车并分配行程
// 参数：n-车队规模
// 说明：旧车队占用的道路不会逐一释放，调用前需先重置路网
func (m *Manager) Init(n int) {
	seed := m.generator.Uint64()
	m.vehicles = make([]*Vehicle, n)
	for i := range m.vehicles {
		id := int64(i)
		m.vehicles[i] = newVehicle(m.ctx, id, randengine.Derive(seed, id), m.nodes)
	}
	priority := lo.CountBy(m.vehicles, func(v *Vehicle) bool { return v.priority })
	log.Infof("%d vehicles created (%d priority)", n, priority)
}

// Len 车队规模
func (m *Manager) Len() int {
	return len(m.vehicles)
}

// Vehicles 全部车辆
func (m *Manager) Vehicles() []*Vehicle {
	return m.vehicles
}

// Update 推进所有车辆一步
// 参数：t-当前步数
// 返回：各结果的车辆数
func (m *Manager) Update(t int64) entity.Tally {
	var tally entity.Tally
	for _, v := range m.vehicles {
		tally.Add(v.Step(t))
	}
	return tally
}

// Cars 展示用车辆位置
// 参数：every-抽稀间隔，每every辆取一辆（<=1表示全部）
// 返回：路径非空车辆的位置
func (m *Manager) Cars(every int) []entity.Car {
	cars := make([]entity.Car, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		if car, ok := v.Position(); ok {
			cars = append(cars, car)
		}
	}
	if every <= 1 {
		return cars
	}
	return lo.Filter(cars, func(_ entity.Car, i int) bool {
		return i%every == 0
	})
}
