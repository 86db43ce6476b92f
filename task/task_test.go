package task

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/route"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/vehicle"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/config"
)

func newTestContext(t *testing.T, rows, cols int, control config.Control) *Context {
	t.Helper()
	rc := config.NewRuntimeConfig(config.Config{Control: control})
	n, err := road.NewGrid(rows, cols, 50, rc.C.FreeFlowSpeed, rc.C.CarSpacing)
	require.NoError(t, err)
	return NewContext(n, route.NewLocalRouter(n), rc, nil)
}

// checkInvariants 车队规模不变，占用数与占用车辆一一对应
func checkInvariants(t *testing.T, ctx *Context, n int, tally entity.Tally) {
	t.Helper()
	require.Equal(t, n, tally.Total())
	vehicles := ctx.vehicleManager.(*vehicle.Manager).Vehicles()
	require.Len(t, vehicles, n)
	holders := make(map[road.EdgeRef]int)
	priority := make(map[road.EdgeRef]int)
	for _, v := range vehicles {
		if ref, on := v.OnEdge(); on {
			holders[ref]++
			if v.Priority() {
				priority[ref]++
			}
		}
	}
	for i := 0; i < ctx.network.NumEdges(); i++ {
		e := ctx.network.Edge(road.EdgeRef(i))
		require.Equal(t, holders[road.EdgeRef(i)], e.Occupancy())
		require.GreaterOrEqual(t, e.Occupancy(), 0)
		require.LessOrEqual(t, e.Occupancy(), e.Capacity()+priority[road.EdgeRef(i)])
	}
}

func TestAverageCycleWithoutAdaptive(t *testing.T) {
	ctx := newTestContext(t, 8, 8, config.Control{Seed: 1})
	ctx.apply(command{kind: commandStart, n: 600})

	for i := 0; i < 1000; i++ {
		tally := ctx.step()
		if i%50 == 0 {
			checkInvariants(t, ctx, 600, tally)
		}
		assert.Equal(t, 40.0, ctx.Latest().Stats.AvgCycle)
	}
	assert.Equal(t, int64(1000), ctx.clock.Tick)
	assert.Greater(t, ctx.Latest().Stats.Trips, int64(0))
}

func TestAdaptiveRun(t *testing.T) {
	ctx := newTestContext(t, 6, 6, config.Control{Seed: 2})
	ctx.apply(command{kind: commandStart, n: 300})
	ctx.apply(command{kind: commandToggleAdaptive, enabled: true})

	for i := 0; i < 1000; i++ {
		tally := ctx.step()
		checkInvariants(t, ctx, 300, tally)
		avg := ctx.junctionManager.AverageCycle()
		assert.GreaterOrEqual(t, avg, 20.0)
		assert.LessOrEqual(t, avg, 120.0)
	}
	assert.True(t, ctx.Latest().Stats.Adaptive)
}

func TestSnapshot(t *testing.T) {
	ctx := newTestContext(t, 3, 3, config.Control{Seed: 3, EmitEvery: 3, DisplayEveryNCars: 2})
	initial := ctx.Latest()
	require.NotNil(t, initial)
	assert.Empty(t, initial.Cars)

	ctx.apply(command{kind: commandStart, n: 10})
	ctx.step()
	s := ctx.Latest()
	assert.Equal(t, int64(0), s.Tick)
	assert.Len(t, s.Cars, 5, "every second car displayed")
	assert.Len(t, s.Lights, 9)
	assert.Equal(t, 10, s.Stats.Vehicles)
	assert.LessOrEqual(t, s.Stats.Blocked+s.Stats.Moving, 10)
	assert.InDelta(t, float64(s.Stats.Blocked)/10*100, s.Stats.Congestion, 1e-9)

	ctx.step()
	ctx.step()
	assert.Same(t, s, ctx.Latest(), "emitted every 3 ticks")
	ctx.step()
	assert.Equal(t, int64(3), ctx.Latest().Tick)
	assert.NotEmpty(t, ctx.Latest().RunID)
}

func TestStartWhileRunning(t *testing.T) {
	ctx := newTestContext(t, 3, 3, config.Control{Seed: 4})
	ctx.apply(command{kind: commandStart, n: 10})
	runID := ctx.runID
	ctx.step()
	ctx.apply(command{kind: commandStart, n: 20})
	assert.Equal(t, runID, ctx.runID)
	assert.Equal(t, 10, ctx.vehicleManager.Len())
	assert.Equal(t, int64(1), ctx.clock.Tick)
}

func TestRestartResetsRun(t *testing.T) {
	ctx := newTestContext(t, 4, 4, config.Control{Seed: 5})
	ctx.apply(command{kind: commandStart, n: 50})
	ctx.apply(command{kind: commandToggleAdaptive, enabled: true})
	ctx.apply(command{kind: commandAddRoadwork, x: 50, y: 50})
	for i := 0; i < 300; i++ {
		ctx.step()
	}
	runID := ctx.runID
	require.Len(t, ctx.roadworks, 1)

	ctx.apply(command{kind: commandStop})
	assert.False(t, ctx.running)
	ctx.apply(command{kind: commandStart, n: 30})

	assert.NotEqual(t, runID, ctx.runID)
	assert.Equal(t, int64(0), ctx.clock.Tick)
	assert.Equal(t, int64(0), ctx.trips)
	assert.Empty(t, ctx.roadworks)
	assert.False(t, ctx.junctionManager.Adaptive())
	assert.Equal(t, 40.0, ctx.junctionManager.AverageCycle())
	for i := 0; i < ctx.network.NumEdges(); i++ {
		assert.False(t, ctx.network.Edge(road.EdgeRef(i)).Blocked())
	}
	tally := ctx.step()
	checkInvariants(t, ctx, 30, tally)
}

func TestAddRoadwork(t *testing.T) {
	ctx := newTestContext(t, 3, 3, config.Control{Seed: 6, RoadworkRadius: 10})
	ctx.apply(command{kind: commandAddRoadwork, x: 48, y: 53})
	require.Equal(t, []entity.Roadwork{{X: 50, Y: 50}}, ctx.roadworks)
	for _, ref := range ctx.network.OutEdges(4) {
		assert.True(t, ctx.network.Edge(ref).Blocked())
	}

	// 超出吸附半径的命令被丢弃
	ctx.apply(command{kind: commandAddRoadwork, x: 25, y: 25})
	assert.Len(t, ctx.roadworks, 1)

	assert.ErrorIs(t, ctx.AddRoadwork(math.NaN(), 0), ErrBadCommand)
	assert.ErrorIs(t, ctx.Start(-1), ErrBadCommand)
}

func TestCommandQueueFull(t *testing.T) {
	ctx := newTestContext(t, 2, 2, config.Control{Seed: 7})
	for i := 0; i < commandQueueSize; i++ {
		require.NoError(t, ctx.ToggleAdaptive(true))
	}
	assert.ErrorIs(t, ctx.Stop(), ErrQueueFull)
}

func TestSubscriberDrop(t *testing.T) {
	ctx := newTestContext(t, 2, 2, config.Control{Seed: 8})
	s := ctx.Subscribe(1)
	first := &entity.Snapshot{Tick: 1}
	ctx.publish(first)
	ctx.publish(&entity.Snapshot{Tick: 2})
	assert.Same(t, first, <-s.C())
	assert.Equal(t, 1, s.dropped)
	assert.Equal(t, int64(2), ctx.Latest().Tick)

	ctx.Unsubscribe(s)
	ctx.publish(&entity.Snapshot{Tick: 3})
	select {
	case <-s.C():
		t.Fatal("unsubscribed channel received a snapshot")
	default:
	}
}

func TestRun(t *testing.T) {
	ctx := newTestContext(t, 3, 3, config.Control{Seed: 9, FPS: 1000, EmitEvery: 1})
	s := ctx.Subscribe(16)
	defer ctx.Unsubscribe(s)

	c, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.Run(c)
	}()

	// 空闲时的命令立即生效
	require.NoError(t, ctx.ToggleAdaptive(true))
	idle := waitSnapshot(t, s)
	assert.True(t, idle.Stats.Adaptive)

	require.NoError(t, ctx.Start(20))
	var running *entity.Snapshot
	for running == nil || running.Tick < 5 {
		running = waitSnapshot(t, s)
	}
	assert.False(t, running.Stats.Adaptive, "start turns adaptive control off")
	assert.Equal(t, 20, running.Stats.Vehicles)

	require.NoError(t, ctx.Stop())
	cancel()
	wg.Wait()
	stopped := ctx.Latest().Tick
	assert.GreaterOrEqual(t, stopped, running.Tick)
}

func TestRunStopAndRestart(t *testing.T) {
	ctx := newTestContext(t, 3, 3, config.Control{Seed: 10, FPS: 1000, EmitEvery: 1})
	s := ctx.Subscribe(64)
	defer ctx.Unsubscribe(s)

	c, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx.Run(c)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.NoError(t, ctx.Start(20))
	var running *entity.Snapshot
	for running == nil || running.Tick < 5 {
		running = waitSnapshot(t, s)
	}
	firstRun := running.RunID

	// 停止后主循环保持运行，但不再推进
	require.NoError(t, ctx.Stop())
	var stopped int64
	require.Eventually(t, func() bool {
		tick := ctx.Latest().Tick
		time.Sleep(10 * ctx.clock.Frame())
		if ctx.Latest().Tick != tick {
			return false
		}
		stopped = tick
		return true
	}, 5*time.Second, time.Millisecond)
	time.Sleep(50 * ctx.clock.Frame())
	assert.Equal(t, stopped, ctx.Latest().Tick, "no ticks after stop")
	assert.Equal(t, firstRun, ctx.Latest().RunID)

	for len(s.C()) > 0 {
		<-s.C()
	}

	// 通过命令队列重新开始
	require.NoError(t, ctx.Start(0))
	var restarted *entity.Snapshot
	for restarted == nil || restarted.RunID == firstRun {
		restarted = waitSnapshot(t, s)
	}
	assert.NotEmpty(t, restarted.RunID)
	assert.Equal(t, int64(0), restarted.Tick, "new run starts at tick 0")
	assert.Equal(t, 0, restarted.Stats.Vehicles)
	assert.Equal(t, 0.0, restarted.Stats.Congestion, "empty fleet has no congestion")
}

func waitSnapshot(t *testing.T, s *Subscriber) *entity.Snapshot {
	t.Helper()
	select {
	case snapshot := <-s.C():
		return snapshot
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot received")
		return nil
	}
}
