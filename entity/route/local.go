package route

import (
	"fmt"

	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/container"
)

// 本地导航服务，在路网上按自由流行程时间搜索最短路
type LocalRouter struct {
	network *road.Network
}

// 创建本地导航服务
func NewLocalRouter(network *road.Network) *LocalRouter {
	return &LocalRouter{network: network}
}

// ShortestPath 最短路搜索
// 功能：以道路自由流行程时间为权重计算start到end的最短路
// 参数：start-起点路口，end-终点路口
// 返回：有序路口序列（含起终点）；不可达时返回ErrNoPath
// 算法说明：
// 1. Dijkstra，优先队列不支持降低优先级，过期项在出队时跳过
// 2. 平行边取行程时间最小者，与车辆选边规则一致
// 3. 施工封闭不影响路径规划，车辆在到达封闭道路时重新分配行程
func (r *LocalRouter) ShortestPath(start, end road.NodeID) ([]road.NodeID, error) {
	if _, ok := r.network.Node(start); !ok {
		return nil, fmt.Errorf("%w: unknown start node %d", ErrNoPath, start)
	}
	if _, ok := r.network.Node(end); !ok {
		return nil, fmt.Errorf("%w: unknown end node %d", ErrNoPath, end)
	}
	if start == end {
		return []road.NodeID{start}, nil
	}

	dist := map[road.NodeID]float64{start: 0}
	distOf := func(v road.NodeID) float64 {
		if d, ok := dist[v]; ok {
			return d
		}
		return mathutil.INF
	}
	prev := make(map[road.NodeID]road.NodeID)
	done := make(map[road.NodeID]bool)
	pq := container.NewPriorityQueue[road.NodeID]()
	pq.HeapPush(start, 0)
	for pq.Len() > 0 {
		u, d := pq.HeapPop()
		if done[u] {
			continue
		}
		done[u] = true
		if u == end {
			break
		}
		for _, ref := range r.network.OutEdges(u) {
			e := r.network.Edge(ref)
			_, v := e.Endpoints()
			if done[v] {
				continue
			}
			nd := d + e.TravelTime()
			if nd < distOf(v) {
				dist[v] = nd
				prev[v] = u
				pq.HeapPush(v, nd)
			}
		}
	}
	if distOf(end) >= mathutil.INF {
		return nil, fmt.Errorf("%w: %d->%d", ErrNoPath, start, end)
	}

	path := []road.NodeID{end}
	for cur := end; cur != start; {
		cur = prev[cur]
		path = append(path, cur)
	}
	return lo.Reverse(path), nil
}
