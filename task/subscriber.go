package task

import (
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/container"
)

// Subscriber 快照订阅者
// 说明：通道满时新快照被丢弃，订阅者读取慢不会阻塞仿真
type Subscriber struct {
	container.IncrementalItemBase

	ch      chan *entity.Snapshot
	dropped int
}

// C 快照通道，取消订阅后不再有新快照，通道不会被关闭
func (s *Subscriber) C() <-chan *entity.Snapshot {
	return s.ch
}

// Subscribe 订阅快照
// 参数：buffer-通道缓冲区大小
// 说明：从下一次发布开始生效
func (ctx *Context) Subscribe(buffer int) *Subscriber {
	s := &Subscriber{ch: make(chan *entity.Snapshot, max(1, buffer))}
	s.SetIndex(-1)
	ctx.subscribers.Add(s)
	return s
}

// Unsubscribe 取消订阅
func (ctx *Context) Unsubscribe(s *Subscriber) {
	ctx.subscribers.Remove(s)
}

// Latest 最新快照，任意协程可调用
func (ctx *Context) Latest() *entity.Snapshot {
	return ctx.latest.Load()
}

// publish 发布快照
// 功能：替换最新快照，并以非阻塞方式发送给所有订阅者
func (ctx *Context) publish(snapshot *entity.Snapshot) {
	ctx.latest.Store(snapshot)
	ctx.subscribers.Prepare()
	for _, s := range ctx.subscribers.Data() {
		select {
		case s.ch <- snapshot:
		default:
			s.dropped++
			if s.dropped%100 == 1 {
				log.Debugf("subscriber is slow, %d snapshots dropped", s.dropped)
			}
		}
	}
}

// republish 空闲时更新最新快照中的施工与自适应配时状态
func (ctx *Context) republish() {
	snapshot := *ctx.latest.Load()
	snapshot.Roadworks = append([]entity.Roadwork{}, ctx.roadworks...)
	snapshot.Stats.Adaptive = ctx.junctionManager.Adaptive()
	ctx.publish(&snapshot)
}
