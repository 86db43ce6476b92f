package road

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

var (
	ErrEdgeNotFound = errors.New("road: no edge between nodes")
	ErrNoNearbyNode = errors.New("road: no node near the given point")
)

// NodeID 路口ID
type NodeID int64

// EdgeRef 边在路网边数组中的下标，路网生命周期内稳定
type EdgeRef int

// EdgeKey 有向多重图中边的唯一标识，Key区分同一对路口之间的平行边
type EdgeKey struct {
	U, V NodeID
	Key  int
}

func (k EdgeKey) String() string {
	return fmt.Sprintf("%d->%d#%d", k.U, k.V, k.Key)
}

// Node 路口
// 功能：保存路口坐标与度数（入度+出度），加载后不可变
type Node struct {
	ID     NodeID
	X, Y   float64
	degree int
}

// Point 实现orb.Pointer，用于空间索引
func (n *Node) Point() orb.Point {
	return orb.Point{n.X, n.Y}
}

// Degree 路口度数（入边数+出边数）
func (n *Node) Degree() int {
	return n.degree
}

// Edge 有向道路
// 功能：保存道路长度、自由流行程时间、容量与运行时占用、施工封闭状态
// 说明：占用数只允许通过Network.Claim/Release修改，封闭状态只允许通过BlockOutgoing/Reset修改
type Edge struct {
	key        EdgeKey
	roadID     int32 // 来源地图中的Road ID，合成路网为-1
	length     float64
	travelTime float64
	capacity   int
	occupancy  int
	blocked    bool
}

func (e *Edge) Key() EdgeKey { return e.key }
func (e *Edge) RoadID() int32 { return e.roadID }
func (e *Edge) Length() float64 { return e.length }
func (e *Edge) TravelTime() float64 { return e.travelTime }
func (e *Edge) Capacity() int { return e.capacity }
func (e *Edge) Occupancy() int { return e.occupancy }
func (e *Edge) Blocked() bool { return e.blocked }
func (e *Edge) HasRoom() bool { return e.occupancy < e.capacity }
func (e *Edge) String() string { return fmt.Sprintf("Edge %v", e.key) }
func (e *Edge) Endpoints() (u, v NodeID) { return e.key.U, e.key.V }

// Network 路网
// 功能：有向多重图，路口与道路的唯一所有者；所有运行时修改都在仿真主协程中串行进行
type Network struct {
	nodes     []*Node
	nodeIndex map[NodeID]*Node
	edges     []*Edge
	out       map[NodeID][]EdgeRef
	between   map[[2]NodeID][]EdgeRef
	byRoad    map[int32]EdgeRef

	bound   orb.Bound
	spatial *quadtree.Quadtree
}

// NumNodes 路口数
func (n *Network) NumNodes() int {
	return len(n.nodes)
}

// NumEdges 道路数
func (n *Network) NumEdges() int {
	return len(n.edges)
}

// Node 根据ID获取路口
func (n *Network) Node(id NodeID) (*Node, bool) {
	node, ok := n.nodeIndex[id]
	return node, ok
}

// Nodes 所有路口（加载顺序）
func (n *Network) Nodes() []*Node {
	return n.nodes
}

// NodeIDs 所有路口ID（加载顺序），用于随机抽取起终点
func (n *Network) NodeIDs() []NodeID {
	ids := make([]NodeID, len(n.nodes))
	for i, node := range n.nodes {
		ids[i] = node.ID
	}
	return ids
}

// Edge 根据下标获取道路，下标越界返回nil
func (n *Network) Edge(ref EdgeRef) *Edge {
	if ref < 0 || int(ref) >= len(n.edges) {
		return nil
	}
	return n.edges[ref]
}

// OutEdges 路口的出边（加载顺序）
func (n *Network) OutEdges(id NodeID) []EdgeRef {
	return n.out[id]
}

// EdgeByRoad 根据来源地图Road ID查找道路
func (n *Network) EdgeByRoad(roadID int32) (EdgeRef, bool) {
	ref, ok := n.byRoad[roadID]
	return ref, ok
}

// BestEdge 选择两个路口之间行程时间最短的平行边
// 功能：遍历u->v的所有平行边，返回行程时间最小者；行程时间相同时取先加载的边
// 参数：u-起点路口，v-终点路口
// 返回：道路下标；不存在u->v的道路时返回ErrEdgeNotFound
func (n *Network) BestEdge(u, v NodeID) (EdgeRef, error) {
	refs := n.between[[2]NodeID{u, v}]
	if len(refs) == 0 {
		return -1, fmt.Errorf("%w: %d->%d", ErrEdgeNotFound, u, v)
	}
	best := refs[0]
	for _, ref := range refs[1:] {
		if n.edges[ref].travelTime < n.edges[best].travelTime {
			best = ref
		}
	}
	return best, nil
}

// Claim 车辆驶入道路，占用数+1
func (n *Network) Claim(ref EdgeRef) {
	e := n.Edge(ref)
	if e == nil {
		log.Warnf("claim unknown edge %d", ref)
		return
	}
	e.occupancy++
}

// Release 车辆离开道路，占用数-1
// 说明：占用数不会小于0，出现时记录告警（说明存在重复释放）
func (n *Network) Release(ref EdgeRef) {
	e := n.Edge(ref)
	if e == nil {
		log.Warnf("release unknown edge %d", ref)
		return
	}
	if e.occupancy <= 0 {
		log.Warnf("release %v with zero occupancy", e)
		e.occupancy = 0
		return
	}
	e.occupancy--
}

// BlockOutgoing 施工封闭路口的所有出边
// 参数：id-路口ID
// 返回：被封闭的道路数
func (n *Network) BlockOutgoing(id NodeID) int {
	refs := n.out[id]
	for _, ref := range refs {
		n.edges[ref].blocked = true
	}
	return len(refs)
}

// Reset 清空所有道路的占用与封闭状态
func (n *Network) Reset() {
	for _, e := range n.edges {
		e.occupancy = 0
		e.blocked = false
	}
}

// NearestNode 查找距离给定坐标最近的路口
// 参数：x,y-平面坐标，radius-最大吸附距离（<=0表示不限制）
// 返回：路口ID；路网为空或最近路口超出radius时返回ErrNoNearbyNode
func (n *Network) NearestNode(x, y, radius float64) (NodeID, error) {
	p := orb.Point{x, y}
	found := n.spatial.Find(p)
	if found == nil {
		return 0, ErrNoNearbyNode
	}
	if radius > 0 && planar.Distance(p, found.Point()) > radius {
		return 0, fmt.Errorf("%w: (%.2f, %.2f) within %.2f", ErrNoNearbyNode, x, y, radius)
	}
	return found.(*Node).ID, nil
}

// Bounds 展示范围 [minX, maxX, minY, maxY]
func (n *Network) Bounds() [4]float64 {
	return [4]float64{n.bound.Min.X(), n.bound.Max.X(), n.bound.Min.Y(), n.bound.Max.Y()}
}

// Segments 每条道路的起终点坐标，用于前端绘制路网
func (n *Network) Segments() [][2][2]float64 {
	segs := make([][2][2]float64, len(n.edges))
	for i, e := range n.edges {
		u, v := n.nodeIndex[e.key.U], n.nodeIndex[e.key.V]
		segs[i] = [2][2]float64{{u.X, u.Y}, {v.X, v.Y}}
	}
	return segs
}
