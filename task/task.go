package task

import (
	"sync/atomic"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/signalsim-oss/clock"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/junction"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/vehicle"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/config"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/container"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/randengine"
)

const (
	SelfName = "signalsim" // 本程序在模拟任务集群中的名字

	commandQueueSize = 64
)

// Context 仿真任务上下文
// 功能：包含仿真的所有组件和运行状态，替代全局变量
// 说明：除命令队列、最新快照与订阅者列表外，所有字段只允许仿真主协程访问
type Context struct {
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock

	// 辅助程序，提供RPC服务
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
	serving        bool

	// 路网
	network *road.Network
	// 信号灯管理器
	junctionManager *junction.Manager
	// 车辆管理器
	vehicleManager entity.IVehicleManager

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig
	// 导航服务
	router entity.IRouter

	// 命令队列，由仿真主协程在步与步之间消费
	commands chan command

	// 本轮仿真状态
	running   bool
	runID     string
	trips     int64
	roadworks []entity.Roadwork

	// 最新快照
	latest atomic.Pointer[entity.Snapshot]
	// 快照订阅者
	subscribers *container.IncrementalArray[*Subscriber]
	// 地图展示信息，创建后不变
	mapInfo entity.MapInfo
}

// NewContext 创建新的仿真任务上下文
// 功能：初始化时钟、信号灯与车辆管理器，并向sidecar注册查询服务
// 参数：
//   - network: 路网
//   - router: 导航服务
//   - rc: 运行时配置
//   - sidecar: sidecar实例，为nil时不提供RPC服务
//
// 返回：初始化完成的Context实例
func NewContext(
	network *road.Network,
	router entity.IRouter,
	rc *config.RuntimeConfig,
	sidecar *syncer.Sidecar,
) *Context {
	ctx := &Context{
		clock:          clock.New(rc.C.FPS),
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
		network:        network,
		runtimeConfig:  rc,
		router:         router,
		commands:       make(chan command, commandQueueSize),
		subscribers:    container.NewIncrementalArray[*Subscriber](),
		mapInfo: entity.MapInfo{
			Bounds: network.Bounds(),
			Roads:  network.Segments(),
		},
	}

	generator := randengine.New(rc.C.Seed)
	ctx.junctionManager = junction.NewManager(ctx)
	ctx.junctionManager.Init(network, generator)
	ctx.vehicleManager = vehicle.NewManager(ctx, generator)

	log.Infof("Node: %v", network.NumNodes())
	log.Infof("Edge: %v", network.NumEdges())
	log.Infof("Signal: %v", ctx.junctionManager.Len())

	if sidecar != nil {
		ctx.clock.Register(sidecar)
		ctx.junctionManager.Register(sidecar)
	}
	ctx.publish(ctx.buildSnapshot(entity.Tally{}))
	return ctx
}

// ServeSidecar 启动sidecar协程，需在所有服务注册完成后调用
func (ctx *Context) ServeSidecar() {
	if ctx.sidecar == nil {
		return
	}
	ctx.serving = true
	go func() {
		err := ctx.sidecar.Serve()
		if err != nil {
			log.Panicf("failed to serve: %v", err)
		}
		ctx.sidecarCloseCh <- struct{}{}
	}()
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) Network() *road.Network {
	return ctx.network
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) VehicleManager() entity.IVehicleManager {
	return ctx.vehicleManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Router() entity.IRouter {
	return ctx.router
}

// MapInfo 地图展示信息
func (ctx *Context) MapInfo() entity.MapInfo {
	return ctx.mapInfo
}

// Close 关闭sidecar并等待其退出
func (ctx *Context) Close() {
	if ctx.closed.Swap(true) {
		return
	}
	if !ctx.serving {
		return
	}
	ctx.sidecar.Close()
	// wait for graceful stop
	<-ctx.sidecarCloseCh
}
