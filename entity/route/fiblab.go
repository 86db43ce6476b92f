package route

import (
	"fmt"
	"math"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"git.fiblab.net/sim/routing/v2/router"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
)

// roadLane 道路上用于构造导航起终点的行车道
type roadLane struct {
	laneID int32
	length float64
}

// searchFunc 车道级搜索，返回Road ID序列与代价
type searchFunc func(from, to roadLane) ([]int32, float64, error)

// 基于routing库的道路级导航服务
// 路径在protobuf地图的车道图上搜索，结果中的Road ID再映射回路网中的路口序列
type FiblabRouter struct {
	network *road.Network
	search  searchFunc

	lanes map[int32]roadLane             // Road ID -> 第一条行车道
	in    map[road.NodeID][]road.EdgeRef // 路口的入边
}

// 创建基于routing库的导航服务
func NewFiblabRouter(network *road.Network, mapData *mapv2.Map) *FiblabRouter {
	lanes := lo.SliceToMap(mapData.Lanes, func(l *mapv2.Lane) (int32, *mapv2.Lane) {
		return l.Id, l
	})
	r := newFiblabRouter(network, searchDriving(router.New(mapData, nil)))
	for _, pb := range mapData.Roads {
		for _, id := range pb.LaneIds {
			if l, ok := lanes[id]; ok && l.Type == mapv2.LaneType_LANE_TYPE_DRIVING {
				r.lanes[pb.Id] = roadLane{laneID: id, length: road.PolylineLength(l.CenterLine)}
				break
			}
		}
	}
	return r
}

func newFiblabRouter(network *road.Network, search searchFunc) *FiblabRouter {
	r := &FiblabRouter{
		network: network,
		search:  search,
		lanes:   make(map[int32]roadLane),
		in:      make(map[road.NodeID][]road.EdgeRef),
	}
	for i := 0; i < network.NumEdges(); i++ {
		ref := road.EdgeRef(i)
		_, v := network.Edge(ref).Endpoints()
		r.in[v] = append(r.in[v], ref)
	}
	return r
}

// searchDriving 从起点车道的起点搜索到终点车道的终点
func searchDriving(rt *router.Router) searchFunc {
	return func(from, to roadLane) ([]int32, float64, error) {
		return rt.SearchDriving(
			&geov2.Position{LanePosition: &geov2.LanePosition{LaneId: from.laneID, S: 0}},
			&geov2.Position{LanePosition: &geov2.LanePosition{LaneId: to.laneID, S: to.length}},
			0,
		)
	}
}

// candidateLanes 候选道路中所有有行车道的道路，同一道路只取一次
func (r *FiblabRouter) candidateLanes(refs []road.EdgeRef) []roadLane {
	res := make([]roadLane, 0, len(refs))
	for _, ref := range refs {
		if l, ok := r.lanes[r.network.Edge(ref).RoadID()]; ok {
			res = append(res, l)
		}
	}
	return lo.Uniq(res)
}

// ShortestPath 最短路搜索
// 功能：调用routing库做道路级搜索，将结果转换为路口序列
// 参数：start-起点路口，end-终点路口
// 返回：有序路口序列；不可达或结果无法映射回路网时返回ErrNoPath
// 算法说明：
// 1. 起点候选为start所有出边的行车道起点，终点候选为end所有入边的行车道终点
// 2. 对每一对候选搜索，结果为首尾相接的Road ID序列，依次映射为路网中的道路
// 3. 取代价最小且首尾路口与start、end一致的结果，代价相同时先搜索到的优先
func (r *FiblabRouter) ShortestPath(start, end road.NodeID) ([]road.NodeID, error) {
	if start == end {
		if _, ok := r.network.Node(start); ok {
			return []road.NodeID{start}, nil
		}
	}
	froms := r.candidateLanes(r.network.OutEdges(start))
	if len(froms) == 0 {
		return nil, fmt.Errorf("%w: no outgoing road at node %d", ErrNoPath, start)
	}
	tos := r.candidateLanes(r.in[end])
	if len(tos) == 0 {
		return nil, fmt.Errorf("%w: no incoming road at node %d", ErrNoPath, end)
	}

	var best []road.NodeID
	bestCost := math.Inf(1)
	for _, from := range froms {
		for _, to := range tos {
			roadIDs, cost, err := r.search(from, to)
			if err != nil || cost >= bestCost {
				continue
			}
			path, err := nodesFromRoads(r.network, roadIDs)
			if err != nil {
				log.Debugf("route %d->%d: %v", start, end, err)
				continue
			}
			if path[0] != start || path[len(path)-1] != end {
				log.Debugf("route %d->%d resolved to %d->%d", start, end, path[0], path[len(path)-1])
				continue
			}
			best, bestCost = path, cost
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %d->%d", ErrNoPath, start, end)
	}
	return best, nil
}

// nodesFromRoads 将Road ID序列转换为路口序列
// 说明：相邻道路必须首尾相接，否则视为不可达
func nodesFromRoads(network *road.Network, roadIDs []int32) ([]road.NodeID, error) {
	if len(roadIDs) == 0 {
		return nil, fmt.Errorf("%w: empty road sequence", ErrNoPath)
	}
	path := make([]road.NodeID, 0, len(roadIDs)+1)
	for i, id := range roadIDs {
		ref, ok := network.EdgeByRoad(id)
		if !ok {
			return nil, fmt.Errorf("%w: road %d not in network", ErrNoPath, id)
		}
		u, v := network.Edge(ref).Endpoints()
		if i == 0 {
			path = append(path, u)
		} else if path[len(path)-1] != u {
			return nil, fmt.Errorf("%w: road %d does not start at node %d", ErrNoPath, id, path[len(path)-1])
		}
		path = append(path, v)
	}
	return path, nil
}
