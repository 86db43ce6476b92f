package entity

import (
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/randengine"
)

// Manager依赖倒置

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(network *road.Network, generator *randengine.Engine) // 初始化

	// 查询路口在第t步是否为绿灯，hasSignal为false表示该路口没有信号灯
	IsGreen(node road.NodeID, t int64) (green bool, hasSignal bool)
	// 累加路口拥堵分数，路口没有信号灯时忽略
	AddCongestion(node road.NodeID, w float64)

	Adapt(t int64) bool       // 自适应配时，返回本步是否执行
	SetAdaptive(enabled bool) // 开关自适应配时
	Adaptive() bool           // 自适应配时是否开启
	AverageCycle() float64    // 全部信号灯的平均周期
	Lights(t int64) []Light   // 展示用信号灯状态
	Reset()                   // 新一轮仿真开始前重置周期与拥堵分数
}

// entity/vehicle/manager.go的依赖倒置
type IVehicleManager interface {
	Init(n int)           // 创建n辆车
	Len() int             // 车队规模
	Update(t int64) Tally // 推进所有车辆一步
	Cars(every int) []Car // 展示用车辆位置，every为抽稀间隔
}
