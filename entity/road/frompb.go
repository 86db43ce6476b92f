package road

import (
	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/parallel"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
)

// pbRoad 从protobuf Road提取的道路属性
type pbRoad struct {
	id     int32
	length float64 // 行车道中心线平均长度
	maxV   float64 // 行车道限速最大值，0表示未知
	ok     bool    // 是否有可用的行车道
}

// PolylineLength 折线长度，点数不足2时为0
func PolylineLength(line *geov2.Polyline) float64 {
	if line == nil || len(line.Nodes) < 2 {
		return 0
	}
	points := lo.Map(line.Nodes, func(node *geov2.XYPosition, _ int) geometry.Point {
		return geometry.NewPointFromPb(node)
	})
	lengths := geometry.GetPolylineLengths2D(points)
	return lengths[len(lengths)-1]
}

// NewNetworkFromPb 将protobuf地图转换为路网
// 功能：Junction转换为路口，连接两个Junction的Road转换为有向道路
// 参数：m-protobuf地图，freeFlowSpeed-车道无限速信息时使用的自由流速度，carSpacing-每辆车占用长度
// 返回：路网与错误信息
// 算法说明：
// 1. 根据Junction的行车道组确定每条Road的前驱路口（OutRoad）与后继路口（InRoad）
// 2. 路口坐标取路口内所有车道中心线点的平均值
// 3. 道路长度取行车道中心线平均长度，行程时间=长度/行车道最大限速
// 4. 缺少前驱或后继路口、缺少行车道的Road被忽略
func NewNetworkFromPb(m *mapv2.Map, freeFlowSpeed, carSpacing float64) (*Network, error) {
	lanes := lo.SliceToMap(m.Lanes, func(l *mapv2.Lane) (int32, *mapv2.Lane) {
		return l.Id, l
	})

	b := NewBuilder(freeFlowSpeed, carSpacing)
	roadFrom := make(map[int32]NodeID)
	roadTo := make(map[int32]NodeID)
	for _, j := range m.Junctions {
		var sx, sy float64
		count := 0
		for _, laneID := range j.LaneIds {
			l, ok := lanes[laneID]
			if !ok || l.CenterLine == nil {
				continue
			}
			for _, p := range l.CenterLine.Nodes {
				sx += p.X
				sy += p.Y
				count++
			}
		}
		if count == 0 {
			log.Warnf("junction %d has no lane geometry, skipped", j.Id)
			continue
		}
		b.AddNode(NodeID(j.Id), sx/float64(count), sy/float64(count))
		for _, g := range j.DrivingLaneGroups {
			roadTo[g.InRoadId] = NodeID(j.Id)
			roadFrom[g.OutRoadId] = NodeID(j.Id)
		}
	}

	roads := parallel.GoMap(m.Roads, func(r *mapv2.Road) pbRoad {
		res := pbRoad{id: r.Id}
		sumL, n := 0.0, 0
		for _, laneID := range r.LaneIds {
			l, ok := lanes[laneID]
			if !ok || l.Type != mapv2.LaneType_LANE_TYPE_DRIVING {
				continue
			}
			length := PolylineLength(l.CenterLine)
			if length <= 0 {
				continue
			}
			sumL += length
			n++
			res.maxV = max(res.maxV, l.MaxSpeed)
		}
		if n > 0 {
			res.length = sumL / float64(n)
			res.ok = true
		}
		return res
	})

	skipped := 0
	for _, r := range roads {
		u, okU := roadFrom[r.id]
		v, okV := roadTo[r.id]
		if !r.ok || !okU || !okV {
			skipped++
			continue
		}
		speed := r.maxV
		if speed <= 0 {
			speed = freeFlowSpeed
		}
		b.AddEdgeWithTravelTime(u, v, r.length, r.length/speed, r.id)
	}
	if skipped > 0 {
		log.Infof("%d of %d roads skipped (no driving lane or dangling)", skipped, len(roads))
	}
	return b.Build()
}
