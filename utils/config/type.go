package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.pb
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

func (p InputPath) GetDb() string {
	return p.DB
}

func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存文件路径
// 功能：返回缓存文件的完整路径
// 返回：缓存文件路径字符串
// 说明：如果未指定缓存路径，使用默认命名规则：{数据库名}.{集合名}.pb
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".pb"
}

// Grid 合成网格路网配置
// 功能：在没有地图数据时生成rows*cols的双向网格路网，用于独立演示与测试
type Grid struct {
	Rows    int     `yaml:"rows"`    // 行数
	Cols    int     `yaml:"cols"`    // 列数
	Spacing float64 `yaml:"spacing"` // 相邻路口间距（米）
}

// Input 指定模拟器所有输入数据的配置项
// 功能：定义路网输入来源，地图文件/MongoDB与合成网格二选一
type Input struct {
	URI  string     `yaml:"uri,omitempty"`  // MongoDB连接字符串
	Map  *InputPath `yaml:"map,omitempty"`  // 地图
	Grid *Grid      `yaml:"grid,omitempty"` // 合成网格
}

// Signal 信号灯配置
type Signal struct {
	DefaultCycle  int32 `yaml:"default_cycle,omitempty"`   // 初始周期长度（步）
	MaxLightsSent int   `yaml:"max_lights_sent,omitempty"` // 展示用信号灯数量上限
}

// Control 模拟器控制配置
// 功能：定义仿真系统的核心控制参数
// 说明：包含帧率、输出节流、车队规模、车辆行为与导航等参数，未填写的项由NewRuntimeConfig补全默认值
type Control struct {
	FPS               int      `yaml:"fps,omitempty"`                  // 目标帧率（步/秒）
	EmitEvery         int      `yaml:"emit_every,omitempty"`           // 每多少步输出一次快照
	DisplayEveryNCars int      `yaml:"display_every_n_cars,omitempty"` // 快照中车辆抽稀间隔，1为全部输出
	DefaultCars       int      `yaml:"default_cars,omitempty"`         // 默认车辆数
	PriorityRatio     *float64 `yaml:"priority_ratio,omitempty"`       // 特权车辆（无视信号灯与容量）比例，未填写为0.02
	FreeFlowSpeed     float64  `yaml:"free_flow_speed,omitempty"`      // 自由流速度（米/秒）
	CarSpacing        float64  `yaml:"car_spacing,omitempty"`          // 每辆车占用的道路长度（米），用于推导容量
	Patience          int      `yaml:"patience,omitempty"`             // 容量受阻最大等待步数
	RouteAttempts     int      `yaml:"route_attempts,omitempty"`       // 导航失败时重新抽样起终点的次数
	Router            string   `yaml:"router,omitempty"`               // 导航实现：local|fiblab
	RoadworkRadius    float64  `yaml:"roadwork_radius,omitempty"`      // 施工点吸附最近路口的最大距离，0为不限制
	Seed              uint64   `yaml:"seed,omitempty"`                 // 随机数种子
	Signal            Signal   `yaml:"signal,omitempty"`
}

// Config YAML配置文件的根结构
type Config struct {
	Input   Input   `yaml:"input"`   // 输入
	Control Control `yaml:"control"` // 模拟过程控制
}
