package task

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
)

var (
	ErrBadCommand = errors.New("task: bad command")
	ErrQueueFull  = errors.New("task: command queue full")
)

type commandKind int

const (
	commandStart commandKind = iota
	commandStop
	commandToggleAdaptive
	commandAddRoadwork
)

func (k commandKind) String() string {
	switch k {
	case commandStart:
		return "start"
	case commandStop:
		return "stop"
	case commandToggleAdaptive:
		return "toggle_adaptive"
	case commandAddRoadwork:
		return "add_roadwork"
	default:
		return "unknown"
	}
}

// command 外部命令，由仿真主协程在步与步之间执行
type command struct {
	kind    commandKind
	n       int     // start: 车队规模
	enabled bool    // toggle_adaptive: 是否开启
	x, y    float64 // add_roadwork: 坐标
}

// post 提交命令，队列满时立即返回错误而不阻塞调用方
func (ctx *Context) post(cmd command) error {
	select {
	case ctx.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("%w: drop %v", ErrQueueFull, cmd.kind)
	}
}

// Start 开始新一轮仿真
// 参数：n-车队规模，0表示空车队
// 说明：仿真运行中时忽略
func (ctx *Context) Start(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: negative vehicle count %d", ErrBadCommand, n)
	}
	return ctx.post(command{kind: commandStart, n: n})
}

// StartDefault 以默认车队规模开始新一轮仿真
func (ctx *Context) StartDefault() error {
	return ctx.Start(ctx.runtimeConfig.C.DefaultCars)
}

// Stop 停止仿真，最多再执行一步
func (ctx *Context) Stop() error {
	return ctx.post(command{kind: commandStop})
}

// ToggleAdaptive 开关自适应配时
func (ctx *Context) ToggleAdaptive(enabled bool) error {
	return ctx.post(command{kind: commandToggleAdaptive, enabled: enabled})
}

// AddRoadwork 在距离(x, y)最近的路口施工，封闭其所有出边
func (ctx *Context) AddRoadwork(x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return fmt.Errorf("%w: invalid roadwork position (%v, %v)", ErrBadCommand, x, y)
	}
	return ctx.post(command{kind: commandAddRoadwork, x: x, y: y})
}

// apply 执行命令，只允许在仿真主协程中调用
func (ctx *Context) apply(cmd command) {
	switch cmd.kind {
	case commandStart:
		if ctx.running {
			log.Infof("simulation %s is running, start ignored", ctx.runID)
			return
		}
		ctx.reset(cmd.n)
	case commandStop:
		if ctx.running {
			log.Infof("simulation %s stopped at step %d", ctx.runID, ctx.clock.Tick)
		}
		ctx.running = false
	case commandToggleAdaptive:
		ctx.junctionManager.SetAdaptive(cmd.enabled)
		log.Infof("adaptive signal control: %v", cmd.enabled)
	case commandAddRoadwork:
		node, err := ctx.network.NearestNode(cmd.x, cmd.y, ctx.runtimeConfig.C.RoadworkRadius)
		if err != nil {
			log.Debugf("roadwork dropped: %v", err)
			return
		}
		blocked := ctx.network.BlockOutgoing(node)
		n, _ := ctx.network.Node(node)
		ctx.roadworks = append(ctx.roadworks, entity.Roadwork{X: n.X, Y: n.Y})
		log.Infof("roadwork at node %d, %d roads blocked", node, blocked)
	}
}

// reset 开始新一轮仿真
// 功能：生成新的运行ID，清空步数、行程计数与施工，关闭自适应配时，重置路网与信号灯，创建新车队
func (ctx *Context) reset(n int) {
	ctx.runID = uuid.NewString()
	ctx.clock.Init()
	ctx.trips = 0
	ctx.roadworks = make([]entity.Roadwork, 0)
	ctx.junctionManager.SetAdaptive(false)
	ctx.network.Reset()
	ctx.junctionManager.Reset()
	ctx.vehicleManager.Init(n)
	ctx.running = true
	log.Infof("simulation %s started with %d vehicles", ctx.runID, n)
}
