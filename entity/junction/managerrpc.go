package junction

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
)

// Register 将信号灯管理器注册到sidecar
// 说明：只提供查询接口，读取时通过读锁与仿真主协程同步，不需要等待仿真步
func (m *Manager) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		mapv2connect.TrafficLightServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return mapv2connect.NewTrafficLightServiceHandler(m, opts...)
		},
		syncer.WithNoLock(),
	)
}

// GetTrafficLight RPC接口：获取指定路口的信号灯状态
// 功能：将信号灯表示为绿、红两个相位的固定程序，返回当前相位与剩余时间
// 参数：ctx-上下文，in-包含路口ID的请求
// 返回：信号灯状态响应，时长单位为秒
// 说明：路口不存在时返回InvalidArgument，路口没有信号灯时返回空程序
func (m *Manager) GetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.GetTrafficLightRequest],
) (*connect.Response[mapv2.GetTrafficLightResponse], error) {
	node := road.NodeID(in.Msg.JunctionId)
	if _, ok := m.ctx.Network().Node(node); !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	s, ok := m.data[node]
	if !ok {
		return connect.NewResponse(&mapv2.GetTrafficLightResponse{}), nil
	}

	dt := m.ctx.Clock().DT
	t := m.tick.Load()

	m.mu.RLock()
	defer m.mu.RUnlock()
	green := s.greenTicks()
	tl := &mapv2.TrafficLight{
		JunctionId: in.Msg.JunctionId,
		Phases: []*mapv2.Phase{
			{Duration: float64(green) * dt, States: []mapv2.LightState{mapv2.LightState_LIGHT_STATE_GREEN}},
			{Duration: float64(int64(s.cycle)-green) * dt, States: []mapv2.LightState{mapv2.LightState_LIGHT_STATE_RED}},
		},
	}
	var phaseIndex int32
	if !s.IsGreen(t) {
		phaseIndex = 1
	}
	return connect.NewResponse(&mapv2.GetTrafficLightResponse{
		TrafficLight:  tl,
		PhaseIndex:    phaseIndex,
		TimeRemaining: float64(s.Remaining(t)) * dt,
	}), nil
}
