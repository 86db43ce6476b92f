package entity

// 单步结果
type Outcome int

const (
	ADVANCED  Outcome = iota // 行驶中或驶入新道路
	BLOCKED                  // 本步停止（红灯、容量、封路）
	COMPLETED                // 行程结束，已重新分配起终点
)

func (o Outcome) String() string {
	switch o {
	case ADVANCED:
		return "ADVANCED"
	case BLOCKED:
		return "BLOCKED"
	case COMPLETED:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}

// 一步内全部车辆结果的计数
type Tally struct {
	Advanced  int
	Blocked   int
	Completed int
}

// 记录一个结果
func (t *Tally) Add(o Outcome) {
	switch o {
	case ADVANCED:
		t.Advanced++
	case BLOCKED:
		t.Blocked++
	case COMPLETED:
		t.Completed++
	}
}

// 结果总数
func (t Tally) Total() int {
	return t.Advanced + t.Blocked + t.Completed
}

// 展示用车辆
type Car struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Priority bool    `json:"priority"`
}

// 展示用信号灯
type Light struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}

// 展示用施工点
type Roadwork struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// 统计数据
type Stats struct {
	Trips      int64   `json:"trips"`      // 累计完成行程数
	Congestion float64 `json:"congestion"` // 本步受阻车辆百分比
	AvgCycle   float64 `json:"avg_cycle"`  // 平均信号周期
	Vehicles   int     `json:"vehicles"`   // 车队规模
	Moving     int     `json:"moving"`     // 本步行驶车辆数
	Blocked    int     `json:"blocked"`    // 本步受阻车辆数
	Adaptive   bool    `json:"adaptive"`   // 自适应配时是否开启
}

// 快照，生成后只读，可以在任意协程间共享
type Snapshot struct {
	RunID     string     `json:"run_id"`
	Tick      int64      `json:"tick"`
	Cars      []Car      `json:"cars"`
	Lights    []Light    `json:"lights"`
	Roadworks []Roadwork `json:"roadworks"`
	Stats     Stats      `json:"stats"`
}

// 地图展示信息，前端连接时下发一次
type MapInfo struct {
	Bounds [4]float64      `json:"bounds"` // [minX, maxX, minY, maxY]
	Roads  [][2][2]float64 `json:"roads"`
}
