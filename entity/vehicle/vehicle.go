package vehicle

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/randengine"
)

const (
	redLightWeight = 1.0 // 红灯等待的拥堵分数
	fullEdgeWeight = 0.5 // 道路满载等待的拥堵分数
	minTravelTime  = 0.1 // 计算速度时行程时间的下限（秒）
)

// Vehicle 车辆
// 功能：沿路径逐步行驶，状态为“位于路口”或“在道路上插值行驶”
// 说明：路口状态下位于path[idx]，道路状态下位于path[idx]与path[idx+1]之间
type Vehicle struct {
	ctx       entity.ITaskContext
	id        int64
	generator *randengine.Engine
	nodes     []road.NodeID // 起终点候选

	priority bool // 特权车辆，无视信号灯与道路容量

	path []road.NodeID
	idx  int

	onEdge     bool
	edge       road.EdgeRef // 当前占用的道路，未占用为-1
	traveled   float64      // 在当前道路上已行驶的距离
	edgeLength float64

	patience int // 在同一路口因道路满载连续等待的步数
}

// newVehicle 创建车辆并分配第一段行程
func newVehicle(ctx entity.ITaskContext, id int64, generator *randengine.Engine, nodes []road.NodeID) *Vehicle {
	v := &Vehicle{
		ctx:       ctx,
		id:        id,
		generator: generator,
		nodes:     nodes,
		priority:  generator.PTrue(*ctx.RuntimeConfig().C.PriorityRatio),
		edge:      -1,
	}
	v.reset()
	return v
}

func (v *Vehicle) ID() int64 {
	return v.id
}

func (v *Vehicle) Priority() bool {
	return v.priority
}

// OnEdge 是否在道路上，返回当前道路
func (v *Vehicle) OnEdge() (road.EdgeRef, bool) {
	return v.edge, v.onEdge
}

// releaseEdge 释放当前占用的道路
func (v *Vehicle) releaseEdge() {
	if v.edge >= 0 {
		v.ctx.Network().Release(v.edge)
		v.edge = -1
	}
	v.onEdge = false
}

// reset 重新分配行程
// 功能：释放道路，随机抽取起终点并规划路径
// 算法说明：
// 1. 导航失败时重新抽取起终点，最多尝试RouteAttempts次
// 2. 全部失败时路径为空，车辆在之后的每一步都报告完成并再次尝试
func (v *Vehicle) reset() {
	v.releaseEdge()
	v.traveled = 0
	v.edgeLength = 0
	v.patience = 0
	v.path = v.path[:0]
	v.idx = 0

	if len(v.nodes) == 0 {
		return
	}
	attempts := v.ctx.RuntimeConfig().C.RouteAttempts
	for i := 0; i < attempts; i++ {
		start := v.nodes[v.generator.Choice(len(v.nodes))]
		end := v.nodes[v.generator.Choice(len(v.nodes))]
		path, err := v.ctx.Router().ShortestPath(start, end)
		if err == nil && len(path) > 0 {
			v.path = path
			return
		}
		log.Debugf("vehicle %d: route %d->%d failed: %v", v.id, start, end, err)
	}
}

// Step 推进一步
// 参数：t-当前步数
// 返回：本步结果
// 算法说明：
// 1. 路径为空或已到终点：重新分配行程，报告COMPLETED
// 2. 道路上：按 长度/max(0.1, 行程时间) 的速度前进DT秒，到达道路末端时释放道路并进入下一路口，报告ADVANCED
// 3. 路口处：选择通往下一路口行程时间最短的道路，依次检查
//   - 道路不存在或施工封闭：重新分配行程，报告BLOCKED
//   - 红灯（特权车辆除外）：拥堵分数+1，报告BLOCKED
//   - 道路有空位或为特权车辆：占用道路并驶入，报告ADVANCED
//   - 否则：拥堵分数+0.5，等待步数+1，超过耐心阈值时重新分配行程，报告BLOCKED
func (v *Vehicle) Step(t int64) entity.Outcome {
	if len(v.path) == 0 || v.idx >= len(v.path)-1 {
		v.reset()
		return entity.COMPLETED
	}
	network := v.ctx.Network()

	if v.onEdge {
		e := network.Edge(v.edge)
		speed := v.edgeLength / max(minTravelTime, e.TravelTime())
		v.traveled += speed * v.ctx.Clock().DT
		if v.traveled >= v.edgeLength {
			v.releaseEdge()
			v.idx++
		}
		return entity.ADVANCED
	}

	u, next := v.path[v.idx], v.path[v.idx+1]
	ref, err := network.BestEdge(u, next)
	if err != nil {
		log.Debugf("vehicle %d: %v", v.id, err)
		v.reset()
		return entity.BLOCKED
	}
	e := network.Edge(ref)
	if e.Blocked() {
		v.reset()
		return entity.BLOCKED
	}

	junctions := v.ctx.JunctionManager()
	if !v.priority {
		if green, hasSignal := junctions.IsGreen(u, t); hasSignal && !green {
			junctions.AddCongestion(u, redLightWeight)
			return entity.BLOCKED
		}
	}

	if e.HasRoom() || v.priority {
		network.Claim(ref)
		v.onEdge = true
		v.edge = ref
		v.edgeLength = e.Length()
		v.traveled = 0
		v.patience = 0
		return entity.ADVANCED
	}

	v.patience++
	junctions.AddCongestion(u, fullEdgeWeight)
	if v.patience > v.ctx.RuntimeConfig().C.Patience {
		v.reset()
	}
	return entity.BLOCKED
}

// Position 展示用位置
// 功能：道路上按已行驶比例在两端路口之间线性插值（比例限制在[0,1]），路口处取路口坐标
// 返回：位置；路径为空时返回false
func (v *Vehicle) Position() (entity.Car, bool) {
	if len(v.path) == 0 {
		return entity.Car{}, false
	}
	network := v.ctx.Network()
	if v.onEdge && v.edgeLength > 0 {
		a, b := network.Edge(v.edge).Endpoints()
		from, _ := network.Node(a)
		to, _ := network.Node(b)
		r := lo.Clamp(v.traveled/v.edgeLength, 0, 1)
		return entity.Car{
			X:        from.X + (to.X-from.X)*r,
			Y:        from.Y + (to.Y-from.Y)*r,
			Priority: v.priority,
		}, true
	}
	node, ok := network.Node(v.path[v.idx])
	if !ok {
		return entity.Car{}, false
	}
	return entity.Car{X: node.X, Y: node.Y, Priority: v.priority}, true
}
