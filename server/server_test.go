package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/route"
	"github.com/tsinghua-fib-lab/signalsim-oss/task"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/config"
)

// newSimulation 3x3网格上的仿真，run为true时启动仿真主协程
func newSimulation(t *testing.T, run bool) *task.Context {
	t.Helper()
	rc := config.NewRuntimeConfig(config.Config{
		Control: config.Control{Seed: 1, FPS: 1000, EmitEvery: 1},
	})
	n, err := road.NewGrid(3, 3, 50, rc.C.FreeFlowSpeed, rc.C.CarSpacing)
	require.NoError(t, err)
	sim := task.NewContext(n, route.NewLocalRouter(n), rc, nil)
	if run {
		c, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			sim.Run(c)
			close(done)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}
	return sim
}

func newServer(t *testing.T, sim Simulation) *httptest.Server {
	t.Helper()
	pattern, handler := NewSimulationService(sim).Handler()
	mux := http.NewServeMux()
	mux.Handle(pattern, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient[Req, Res any](srv *httptest.Server, procedure string) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](srv.Client(), srv.URL+procedure, connect.WithCodec(jsonCodec{}))
}

func TestSimulationService(t *testing.T) {
	sim := newSimulation(t, true)
	srv := newServer(t, sim)
	ctx := context.Background()

	mapInfo, err := newClient[Empty, entity.MapInfo](srv, GetMapInfoProcedure).CallUnary(ctx, connect.NewRequest(&Empty{}))
	require.NoError(t, err)
	assert.Equal(t, sim.MapInfo(), *mapInfo.Msg)
	assert.Len(t, mapInfo.Msg.Roads, 24)

	_, err = newClient[StartRequest, Empty](srv, StartProcedure).CallUnary(ctx, connect.NewRequest(&StartRequest{Vehicles: lo.ToPtr(20)}))
	require.NoError(t, err)
	_, err = newClient[ToggleAdaptiveRequest, Empty](srv, ToggleAdaptiveProcedure).CallUnary(ctx, connect.NewRequest(&ToggleAdaptiveRequest{Active: true}))
	require.NoError(t, err)
	_, err = newClient[AddRoadworkRequest, Empty](srv, AddRoadworkProcedure).CallUnary(ctx, connect.NewRequest(&AddRoadworkRequest{X: 50, Y: 50}))
	require.NoError(t, err)

	getSnapshot := newClient[Empty, entity.Snapshot](srv, GetSnapshotProcedure)
	require.Eventually(t, func() bool {
		res, err := getSnapshot.CallUnary(ctx, connect.NewRequest(&Empty{}))
		if err != nil {
			return false
		}
		s := res.Msg
		return s.Stats.Vehicles == 20 && s.Stats.Adaptive && len(s.Roadworks) == 1 && s.Tick > 0
	}, 5*time.Second, 10*time.Millisecond)

	_, err = newClient[StartRequest, Empty](srv, StartProcedure).CallUnary(ctx, connect.NewRequest(&StartRequest{Vehicles: lo.ToPtr(-1)}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = newClient[Empty, Empty](srv, StopProcedure).CallUnary(ctx, connect.NewRequest(&Empty{}))
	require.NoError(t, err)
}

func TestStartFleetSize(t *testing.T) {
	sim := newSimulation(t, true)
	srv := newServer(t, sim)
	ctx := context.Background()
	start := newClient[StartRequest, Empty](srv, StartProcedure)
	stop := newClient[Empty, Empty](srv, StopProcedure)

	// 未填写车队规模时使用默认值
	_, err := start.CallUnary(ctx, connect.NewRequest(&StartRequest{}))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sim.Latest().Stats.Vehicles == 600
	}, 5*time.Second, 10*time.Millisecond)
	runID := sim.Latest().RunID

	_, err = stop.CallUnary(ctx, connect.NewRequest(&Empty{}))
	require.NoError(t, err)
	_, err = start.CallUnary(ctx, connect.NewRequest(&StartRequest{Vehicles: lo.ToPtr(0)}))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s := sim.Latest()
		return s.RunID != runID && s.Tick > 0
	}, 5*time.Second, 10*time.Millisecond)
	s := sim.Latest()
	assert.Equal(t, 0, s.Stats.Vehicles, "explicit zero is an empty fleet")
	assert.Equal(t, 0.0, s.Stats.Congestion)
	assert.Empty(t, s.Cars)
}

func TestCommandQueueFull(t *testing.T) {
	sim := newSimulation(t, false)
	srv := newServer(t, sim)
	stop := newClient[Empty, Empty](srv, StopProcedure)

	var err error
	for i := 0; i <= 64 && err == nil; i++ {
		_, err = stop.CallUnary(context.Background(), connect.NewRequest(&Empty{}))
	}
	assert.Equal(t, connect.CodeResourceExhausted, connect.CodeOf(err))
}

func TestPlainJSON(t *testing.T) {
	sim := newSimulation(t, false)
	srv := newServer(t, sim)

	res, err := http.Post(srv.URL+GetSnapshotProcedure, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var s entity.Snapshot
	require.NoError(t, json.NewDecoder(res.Body).Decode(&s))
	assert.Equal(t, int64(0), s.Tick)
	assert.Len(t, s.Lights, 9)
}

func TestWatchSnapshots(t *testing.T) {
	sim := newSimulation(t, true)
	srv := newServer(t, sim)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := newClient[WatchSnapshotsRequest, entity.Snapshot](srv, WatchSnapshotsProcedure).
		CallServerStream(ctx, connect.NewRequest(&WatchSnapshotsRequest{Buffer: 8}))
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Receive(), "latest snapshot first")
	assert.Empty(t, stream.Msg().Cars)

	require.NoError(t, sim.Start(5))
	for stream.Receive() {
		s := stream.Msg()
		if s.Tick >= 3 {
			assert.Equal(t, 5, s.Stats.Vehicles)
			return
		}
	}
	t.Fatalf("stream ended: %v", stream.Err())
}

func TestJSONCodec(t *testing.T) {
	var c jsonCodec
	assert.Equal(t, "json", c.Name())

	var req AddRoadworkRequest
	require.NoError(t, c.Unmarshal(nil, &req))
	require.NoError(t, c.Unmarshal([]byte(`{"x":1.5,"y":2}`), &req))
	assert.Equal(t, AddRoadworkRequest{X: 1.5, Y: 2}, req)
	assert.Error(t, c.Unmarshal([]byte(`{"x":`), &req))

	data, err := c.Marshal(&StartRequest{Vehicles: lo.ToPtr(3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"vehicles":3}`, string(data))
}
