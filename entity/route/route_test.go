package route

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/config"
)

const speed = 50 / 3.6

func TestShortestPathGrid(t *testing.T) {
	n, err := road.NewGrid(3, 3, 100, speed, 7)
	require.NoError(t, err)
	r := NewLocalRouter(n)

	path, err := r.ShortestPath(0, 8)
	require.NoError(t, err)
	assert.Len(t, path, 5, "manhattan distance of 4 edges")
	assert.Equal(t, road.NodeID(0), path[0])
	assert.Equal(t, road.NodeID(8), path[4])
	for i := 0; i+1 < len(path); i++ {
		_, err := n.BestEdge(path[i], path[i+1])
		assert.NoError(t, err)
	}

	path, err = r.ShortestPath(4, 4)
	require.NoError(t, err)
	assert.Equal(t, []road.NodeID{4}, path)
}

func TestShortestPathWeights(t *testing.T) {
	// 1->2->4 更短，但1->3->4行程时间更少
	b := road.NewBuilder(speed, 7)
	for i := 1; i <= 4; i++ {
		b.AddNode(road.NodeID(i), float64(i), 0)
	}
	b.AddEdgeWithTravelTime(1, 2, 10, 50, -1)
	b.AddEdgeWithTravelTime(2, 4, 10, 50, -1)
	b.AddEdgeWithTravelTime(1, 3, 100, 10, -1)
	b.AddEdgeWithTravelTime(3, 4, 100, 10, -1)
	n, err := b.Build()
	require.NoError(t, err)

	path, err := NewLocalRouter(n).ShortestPath(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []road.NodeID{1, 3, 4}, path)
}

func TestShortestPathUnreachable(t *testing.T) {
	b := road.NewBuilder(speed, 7)
	b.AddNode(1, 0, 0)
	b.AddNode(2, 10, 0)
	b.AddNode(3, 20, 0)
	b.AddEdge(1, 2, 10)
	n, err := b.Build()
	require.NoError(t, err)
	r := NewLocalRouter(n)

	_, err = r.ShortestPath(2, 1)
	assert.ErrorIs(t, err, ErrNoPath)
	_, err = r.ShortestPath(1, 3)
	assert.ErrorIs(t, err, ErrNoPath)
	_, err = r.ShortestPath(1, 9)
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestNodesFromRoads(t *testing.T) {
	b := road.NewBuilder(speed, 7)
	b.AddNode(1, 0, 0)
	b.AddNode(2, 10, 0)
	b.AddNode(3, 20, 0)
	b.AddEdgeWithTravelTime(1, 2, 10, 1, 101)
	b.AddEdgeWithTravelTime(2, 3, 10, 1, 102)
	b.AddEdgeWithTravelTime(3, 1, 20, 2, 103)
	n, err := b.Build()
	require.NoError(t, err)

	path, err := nodesFromRoads(n, []int32{101, 102, 103})
	require.NoError(t, err)
	assert.Equal(t, []road.NodeID{1, 2, 3, 1}, path)

	_, err = nodesFromRoads(n, []int32{101, 103})
	assert.ErrorIs(t, err, ErrNoPath, "roads must be connected")
	_, err = nodesFromRoads(n, []int32{999})
	assert.ErrorIs(t, err, ErrNoPath)
	_, err = nodesFromRoads(n, nil)
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestFiblabRouterCandidates(t *testing.T) {
	// 1有两条出路101、102，4有两条入路103、104
	b := road.NewBuilder(speed, 7)
	for i := 1; i <= 4; i++ {
		b.AddNode(road.NodeID(i), float64(i), 0)
	}
	b.AddEdgeWithTravelTime(1, 2, 10, 1, 101)
	b.AddEdgeWithTravelTime(1, 3, 10, 1, 102)
	b.AddEdgeWithTravelTime(2, 4, 10, 1, 103)
	b.AddEdgeWithTravelTime(3, 4, 10, 1, 104)
	n, err := b.Build()
	require.NoError(t, err)

	type pair struct{ from, to int32 }
	type result struct {
		roads []int32
		cost  float64
	}
	results := map[pair]result{}
	calls := 0
	r := newFiblabRouter(n, func(from, to roadLane) ([]int32, float64, error) {
		calls++
		if res, ok := results[pair{from.laneID, to.laneID}]; ok {
			return res.roads, res.cost, nil
		}
		return nil, 0, errors.New("unreachable")
	})
	for id := int32(101); id <= 104; id++ {
		r.lanes[id] = roadLane{laneID: id * 10, length: 10}
	}

	// 只有第二条出路可达
	results[pair{1020, 1040}] = result{[]int32{102, 104}, 20}
	path, err := r.ShortestPath(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []road.NodeID{1, 3, 4}, path)
	assert.Equal(t, 4, calls, "every out-road and in-road pair is searched")

	// 取代价最小者，首尾路口不一致的结果被忽略
	results[pair{1010, 1030}] = result{[]int32{101, 103}, 10}
	results[pair{1010, 1040}] = result{[]int32{103}, 1}
	path, err = r.ShortestPath(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []road.NodeID{1, 2, 4}, path)

	_, err = r.ShortestPath(4, 1)
	assert.ErrorIs(t, err, ErrNoPath)
	path, err = r.ShortestPath(2, 2)
	require.NoError(t, err)
	assert.Equal(t, []road.NodeID{2}, path)
}

func TestNew(t *testing.T) {
	n, err := road.NewGrid(2, 2, 100, speed, 7)
	require.NoError(t, err)

	r, err := New(config.RouterLocal, n, nil)
	require.NoError(t, err)
	assert.IsType(t, &LocalRouter{}, r)

	_, err = New(config.RouterFiblab, n, nil)
	assert.Error(t, err)
	_, err = New("astar", n, nil)
	assert.Error(t, err)
}
