package road

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"
)

// Builder 路网构建器
// 功能：逐个加入路口与道路，Build时统一校验并建立索引
// 说明：错误在Build时统一返回，便于地图转换代码连续调用
type Builder struct {
	speed   float64 // 自由流速度（米/秒）
	spacing float64 // 每辆车占用长度（米）

	nodes     []*Node
	nodeIndex map[NodeID]*Node
	edges     []*Edge
	parallel  map[[2]NodeID]int
	errs      []error
}

// NewBuilder 创建路网构建器
// 参数：freeFlowSpeed-自由流速度（米/秒），carSpacing-每辆车占用长度（米）
func NewBuilder(freeFlowSpeed, carSpacing float64) *Builder {
	return &Builder{
		speed:     freeFlowSpeed,
		spacing:   carSpacing,
		nodes:     make([]*Node, 0),
		nodeIndex: make(map[NodeID]*Node),
		edges:     make([]*Edge, 0),
		parallel:  make(map[[2]NodeID]int),
	}
}

// AddNode 加入路口，ID重复时记录错误
func (b *Builder) AddNode(id NodeID, x, y float64) {
	if _, ok := b.nodeIndex[id]; ok {
		b.errs = append(b.errs, fmt.Errorf("duplicated node %d", id))
		return
	}
	n := &Node{ID: id, X: x, Y: y}
	b.nodes = append(b.nodes, n)
	b.nodeIndex[id] = n
}

// AddEdge 加入道路，行程时间按自由流速度计算
// 参数：u-起点路口，v-终点路口，length-长度（米）
// 返回：道路标识
func (b *Builder) AddEdge(u, v NodeID, length float64) EdgeKey {
	return b.AddEdgeWithTravelTime(u, v, length, length/b.speed, -1)
}

// AddEdgeWithTravelTime 加入指定行程时间的道路
// 功能：加入一条u->v道路，容量按max(1, length/carSpacing)推导
// 参数：u-起点路口，v-终点路口，length-长度（米），travelTime-自由流行程时间（秒），roadID-来源地图Road ID（无则-1）
// 返回：道路标识，Key为该路口对已有平行边的数量
func (b *Builder) AddEdgeWithTravelTime(u, v NodeID, length, travelTime float64, roadID int32) EdgeKey {
	pair := [2]NodeID{u, v}
	key := EdgeKey{U: u, V: v, Key: b.parallel[pair]}
	if length <= 0 || math.IsNaN(length) {
		b.errs = append(b.errs, fmt.Errorf("edge %v has non-positive length %f", key, length))
		return key
	}
	b.parallel[pair]++
	b.edges = append(b.edges, &Edge{
		key:        key,
		roadID:     roadID,
		length:     length,
		travelTime: travelTime,
		capacity:   max(1, int(length/b.spacing)),
	})
	return key
}

// Build 构建路网
// 功能：校验道路端点，计算路口度数，建立出边/平行边/Road索引与空间索引
// 返回：路网与错误信息
func (b *Builder) Build() (*Network, error) {
	if len(b.nodes) == 0 {
		b.errs = append(b.errs, errors.New("empty road network"))
	}
	for _, e := range b.edges {
		if _, ok := b.nodeIndex[e.key.U]; !ok {
			b.errs = append(b.errs, fmt.Errorf("edge %v references unknown node %d", e.key, e.key.U))
		}
		if _, ok := b.nodeIndex[e.key.V]; !ok {
			b.errs = append(b.errs, fmt.Errorf("edge %v references unknown node %d", e.key, e.key.V))
		}
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("road: build network: %w", errors.Join(b.errs...))
	}

	n := &Network{
		nodes:     b.nodes,
		nodeIndex: b.nodeIndex,
		edges:     b.edges,
		out:       make(map[NodeID][]EdgeRef),
		between:   make(map[[2]NodeID][]EdgeRef),
		byRoad:    make(map[int32]EdgeRef),
	}
	for i, e := range n.edges {
		ref := EdgeRef(i)
		n.nodeIndex[e.key.U].degree++
		n.nodeIndex[e.key.V].degree++
		n.out[e.key.U] = append(n.out[e.key.U], ref)
		pair := [2]NodeID{e.key.U, e.key.V}
		n.between[pair] = append(n.between[pair], ref)
		if e.roadID >= 0 {
			n.byRoad[e.roadID] = ref
		}
	}

	points := make(orb.MultiPoint, len(n.nodes))
	for i, node := range n.nodes {
		points[i] = node.Point()
	}
	n.bound = points.Bound()
	n.spatial = quadtree.New(n.bound.Pad(1))
	for _, node := range n.nodes {
		if err := n.spatial.Add(node); err != nil {
			return nil, fmt.Errorf("road: index node %d: %w", node.ID, err)
		}
	}
	return n, nil
}
