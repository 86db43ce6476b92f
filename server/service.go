package server

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
	"github.com/tsinghua-fib-lab/signalsim-oss/task"
)

const (
	ServiceName = "signalsim.v1.SimulationService"

	StartProcedure          = "/" + ServiceName + "/Start"
	StopProcedure           = "/" + ServiceName + "/Stop"
	ToggleAdaptiveProcedure = "/" + ServiceName + "/ToggleAdaptive"
	AddRoadworkProcedure    = "/" + ServiceName + "/AddRoadwork"
	GetSnapshotProcedure    = "/" + ServiceName + "/GetSnapshot"
	GetMapInfoProcedure     = "/" + ServiceName + "/GetMapInfo"
	WatchSnapshotsProcedure = "/" + ServiceName + "/WatchSnapshots"

	defaultWatchBuffer = 4
)

// Simulation 展示层可以访问的仿真操作，由task.Context实现
type Simulation interface {
	Start(n int) error
	StartDefault() error
	Stop() error
	ToggleAdaptive(enabled bool) error
	AddRoadwork(x, y float64) error
	Latest() *entity.Snapshot
	MapInfo() entity.MapInfo
	Subscribe(buffer int) *task.Subscriber
	Unsubscribe(s *task.Subscriber)
}

type Empty struct{}

type StartRequest struct {
	Vehicles *int `json:"vehicles,omitempty"` // 车队规模，未填写为默认值
}

type ToggleAdaptiveRequest struct {
	Active bool `json:"active"`
}

type AddRoadworkRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type WatchSnapshotsRequest struct {
	Buffer int `json:"buffer"` // 订阅通道大小，0为默认值
}

// SimulationService 仿真控制与快照查询服务
// 说明：命令只是提交到仿真主协程的队列，返回成功不代表已经执行
type SimulationService struct {
	sim Simulation
}

func NewSimulationService(sim Simulation) *SimulationService {
	return &SimulationService{sim: sim}
}

// Register 向sidecar注册服务，不参与步进同步
func (s *SimulationService) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		ServiceName,
		func(opts ...connect.HandlerOption) (string, http.Handler) {
			return s.Handler(opts...)
		},
		syncer.WithNoLock(),
	)
}

// Handler 构造服务的HTTP处理器
// 返回：路由前缀与处理器
func (s *SimulationService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, connect.WithCodec(jsonCodec{}))
	mux := http.NewServeMux()
	mux.Handle(StartProcedure, connect.NewUnaryHandler(StartProcedure, s.Start, opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, s.Stop, opts...))
	mux.Handle(ToggleAdaptiveProcedure, connect.NewUnaryHandler(ToggleAdaptiveProcedure, s.ToggleAdaptive, opts...))
	mux.Handle(AddRoadworkProcedure, connect.NewUnaryHandler(AddRoadworkProcedure, s.AddRoadwork, opts...))
	mux.Handle(GetSnapshotProcedure, connect.NewUnaryHandler(GetSnapshotProcedure, s.GetSnapshot, opts...))
	mux.Handle(GetMapInfoProcedure, connect.NewUnaryHandler(GetMapInfoProcedure, s.GetMapInfo, opts...))
	mux.Handle(WatchSnapshotsProcedure, connect.NewServerStreamHandler(WatchSnapshotsProcedure, s.WatchSnapshots, opts...))
	return "/" + ServiceName + "/", mux
}

// commandError 将命令提交错误转换为RPC错误码
func commandError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, task.ErrBadCommand):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, task.ErrQueueFull):
		return connect.NewError(connect.CodeResourceExhausted, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func (s *SimulationService) Start(
	ctx context.Context, in *connect.Request[StartRequest],
) (*connect.Response[Empty], error) {
	start := s.sim.StartDefault
	if n := in.Msg.Vehicles; n != nil {
		start = func() error { return s.sim.Start(*n) }
	}
	if err := commandError(start()); err != nil {
		return nil, err
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *SimulationService) Stop(
	ctx context.Context, in *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	if err := commandError(s.sim.Stop()); err != nil {
		return nil, err
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *SimulationService) ToggleAdaptive(
	ctx context.Context, in *connect.Request[ToggleAdaptiveRequest],
) (*connect.Response[Empty], error) {
	if err := commandError(s.sim.ToggleAdaptive(in.Msg.Active)); err != nil {
		return nil, err
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *SimulationService) AddRoadwork(
	ctx context.Context, in *connect.Request[AddRoadworkRequest],
) (*connect.Response[Empty], error) {
	if err := commandError(s.sim.AddRoadwork(in.Msg.X, in.Msg.Y)); err != nil {
		return nil, err
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *SimulationService) GetSnapshot(
	ctx context.Context, in *connect.Request[Empty],
) (*connect.Response[entity.Snapshot], error) {
	return connect.NewResponse(s.sim.Latest()), nil
}

func (s *SimulationService) GetMapInfo(
	ctx context.Context, in *connect.Request[Empty],
) (*connect.Response[entity.MapInfo], error) {
	info := s.sim.MapInfo()
	return connect.NewResponse(&info), nil
}

// WatchSnapshots 订阅快照流
// 功能：先发送当前最新快照，之后转发每次发布的快照，直到客户端断开
// 说明：客户端读取慢时中间的快照会被丢弃
func (s *SimulationService) WatchSnapshots(
	ctx context.Context, in *connect.Request[WatchSnapshotsRequest], stream *connect.ServerStream[entity.Snapshot],
) error {
	buffer := in.Msg.Buffer
	if buffer <= 0 {
		buffer = defaultWatchBuffer
	}
	sub := s.sim.Subscribe(buffer)
	defer s.sim.Unsubscribe(sub)

	if err := stream.Send(s.sim.Latest()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case snapshot := <-sub.C():
			if err := stream.Send(snapshot); err != nil {
				log.Debugf("watch snapshots: %v", err)
				return err
			}
		}
	}
}
