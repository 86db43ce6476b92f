package junction

import (
	"math"

	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
)

// Signal 路口信号灯
// 功能：保存周期、相位偏移与拥堵分数，相位是步数的纯函数
type Signal struct {
	node       road.NodeID
	x, y       float64
	cycle      int32   // 周期（步），范围[20,120]
	offset     int32   // 相位偏移，创建后不变
	congestion float64 // 拥堵分数，每次自适应配时后清零
}

func newSignal(node *road.Node, cycle, offset int32) *Signal {
	return &Signal{
		node:   node.ID,
		x:      node.X,
		y:      node.Y,
		cycle:  cycle,
		offset: offset,
	}
}

func (s *Signal) Node() road.NodeID { return s.node }
func (s *Signal) Cycle() int32 { return s.cycle }
func (s *Signal) Offset() int32 { return s.offset }
func (s *Signal) Congestion() float64 { return s.congestion }

// phase 第t步在周期内的位置
func (s *Signal) phase(t int64) int64 {
	return (t + int64(s.offset)) % int64(s.cycle)
}

// IsGreen 第t步是否为绿灯
// 说明：周期的一半按实数计算，奇数周期（如35）绿灯18步、红灯17步
func (s *Signal) IsGreen(t int64) bool {
	return float64(s.phase(t)) < float64(s.cycle)/2
}

// greenTicks 一个周期内的绿灯步数
func (s *Signal) greenTicks() int64 {
	return int64(math.Ceil(float64(s.cycle) / 2))
}

// Remaining 当前灯色剩余步数（含第t步）
func (s *Signal) Remaining(t int64) int64 {
	p := s.phase(t)
	if s.IsGreen(t) {
		return s.greenTicks() - p
	}
	return int64(s.cycle) - p
}
