package task

import (
	"context"
	"flag"
	"time"

	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 600, "心跳日志间隔步数")
)

// Run 仿真主循环
// 功能：执行命令并按目标帧率推进仿真，直到c被取消
// 算法说明：
// 1. 空闲时阻塞等待命令，执行后重新发布快照以反映施工与配时开关
// 2. 运行时在每步开始前取出并执行所有已提交的命令
// 3. 执行一步后休眠本步剩余的时间预算
func (ctx *Context) Run(c context.Context) {
	log.Infof("engine ready")
	for {
		if !ctx.running {
			select {
			case <-c.Done():
				log.Infof("engine complete")
				return
			case cmd := <-ctx.commands:
				ctx.apply(cmd)
				if !ctx.running {
					ctx.republish()
				}
			}
			continue
		}
		if !ctx.drain(c) {
			log.Infof("engine complete")
			return
		}
		if !ctx.running {
			continue
		}
		started := time.Now()
		ctx.step()
		ctx.clock.Pace(started)
	}
}

// drain 执行所有已提交的命令，c被取消时返回false
func (ctx *Context) drain(c context.Context) bool {
	for {
		select {
		case <-c.Done():
			return false
		case cmd := <-ctx.commands:
			ctx.apply(cmd)
		default:
			return true
		}
	}
}

// step 执行一步
// 算法说明：
// 1. 自适应配时（到期时）
// 2. 依次推进所有车辆，累计完成行程数
// 3. 每EmitEvery步生成并发布快照
// 4. 步数+1
func (ctx *Context) step() entity.Tally {
	t := ctx.clock.Tick
	if ctx.junctionManager.Adapt(t) {
		log.Debugf("step %d: adaptive pass, average cycle %.2f", t, ctx.junctionManager.AverageCycle())
	}
	tally := ctx.vehicleManager.Update(t)
	ctx.trips += int64(tally.Completed)

	if t%int64(ctx.runtimeConfig.C.EmitEvery) == 0 {
		ctx.publish(ctx.buildSnapshot(tally))
	}
	if *heartBeatInterval > 0 && t%int64(*heartBeatInterval) == 0 {
		log.Infof(
			"STEP: %d(%s) trips=%d blocked=%d avg_cycle=%.2f",
			t, ctx.clock, ctx.trips, tally.Blocked, ctx.junctionManager.AverageCycle(),
		)
	}
	ctx.clock.Advance()
	return tally
}

// buildSnapshot 根据本步结果生成快照
func (ctx *Context) buildSnapshot(tally entity.Tally) *entity.Snapshot {
	t := ctx.clock.Tick
	n := ctx.vehicleManager.Len()
	congestion := 0.0
	if n > 0 {
		congestion = float64(tally.Blocked) / float64(n) * 100
	}
	return &entity.Snapshot{
		RunID:     ctx.runID,
		Tick:      t,
		Cars:      ctx.vehicleManager.Cars(ctx.runtimeConfig.C.DisplayEveryNCars),
		Lights:    ctx.junctionManager.Lights(t),
		Roadworks: append([]entity.Roadwork{}, ctx.roadworks...),
		Stats: entity.Stats{
			Trips:      ctx.trips,
			Congestion: congestion,
			AvgCycle:   ctx.junctionManager.AverageCycle(),
			Vehicles:   n,
			Moving:     tally.Advanced,
			Blocked:    tally.Blocked,
			Adaptive:   ctx.junctionManager.Adaptive(),
		},
	}
}
