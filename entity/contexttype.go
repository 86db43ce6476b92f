package entity

import (
	"github.com/tsinghua-fib-lab/signalsim-oss/clock"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/config"
)

// 导航模块接口
type IRouter interface {
	// 按自由流行程时间计算最短路，返回有序路口序列；不可达时返回route.ErrNoPath
	ShortestPath(start, end road.NodeID) ([]road.NodeID, error)
}

// 任务上下文，替代全局变量，由每个实体在创建时持有
type ITaskContext interface {
	Clock() *clock.Clock
	Network() *road.Network
	JunctionManager() IJunctionManager
	Router() IRouter
	RuntimeConfig() *config.RuntimeConfig
}
