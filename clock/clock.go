package clock

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
)

// Clock 仿真时钟
// 功能：维护当前仿真步数与仿真时间，并按目标帧率控制实际推进速度
// 说明：Tick与T只允许仿真主协程读写，其他协程通过Now RPC读取最近一次发布的时间
type Clock struct {
	clockv1connect.UnimplementedClockServiceHandler

	DT  float64 // 每步对应的仿真时间（秒），等于1/FPS
	FPS int     // 目标帧率

	Tick int64   // 当前步数（本轮仿真从0开始）
	T    float64 // 当前仿真时间（秒）

	frame     time.Duration         // 每步的实际时间预算
	published atomic.Uint64         // 发布给其他协程的T（float64位表示）
	sleep     func(d time.Duration) // 可替换的休眠函数
}

// New 根据目标帧率创建时钟
// 参数：fps-目标帧率（步/秒）
// 返回：初始化完成的时钟实例
func New(fps int) *Clock {
	if fps <= 0 {
		log.Panicf("fps must be positive, got %d", fps)
	}
	c := &Clock{
		DT:    1 / float64(fps),
		FPS:   fps,
		frame: time.Second / time.Duration(fps),
		sleep: time.Sleep,
	}
	c.Init()
	return c
}

// Init 重置到第0步
func (c *Clock) Init() {
	c.Tick = 0
	c.T = 0
	c.published.Store(math.Float64bits(0))
}

// Advance 推进一步
func (c *Clock) Advance() {
	c.Tick++
	c.T = float64(c.Tick) * c.DT
	c.published.Store(math.Float64bits(c.T))
}

// Pace 帧率控制
// 功能：休眠本步剩余的时间预算，保持目标帧率
// 参数：started-本步开始的时刻
// 返回：实际休眠时长
// 说明：软实时，超时的步不补偿，下一步立即开始
func (c *Clock) Pace(started time.Time) time.Duration {
	wait := c.frame - time.Since(started)
	if wait <= 0 {
		return 0
	}
	c.sleep(wait)
	return wait
}

// Frame 每步的实际时间预算
func (c *Clock) Frame() time.Duration {
	return c.frame
}

// String 获取时钟的字符串表示（HH:MM:SS）
func (c *Clock) String() string {
	h, m, s := c.GetHourMinuteSecond()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, int(s))
}

// GetHourMinuteSecond 获取当前时间的小时、分钟、秒
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
