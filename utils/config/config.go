package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

const (
	RouterLocal  = "local"  // 本地Dijkstra导航
	RouterFiblab = "fiblab" // 基于routing库的道路级导航，仅支持protobuf地图
)

// RuntimeConfig 运行时配置
// 功能：存储补全默认值后的配置信息
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象，为未填写的控制参数设置默认值
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	c := config.Control
	if c.FPS <= 0 {
		c.FPS = 60
	}
	if c.EmitEvery <= 0 {
		c.EmitEvery = 2
	}
	if c.DisplayEveryNCars <= 0 {
		c.DisplayEveryNCars = 1
	}
	if c.DefaultCars <= 0 {
		c.DefaultCars = 600
	}
	if c.PriorityRatio == nil {
		ratio := 0.02
		c.PriorityRatio = &ratio
	}
	if c.FreeFlowSpeed <= 0 {
		c.FreeFlowSpeed = 50 / 3.6
	}
	if c.CarSpacing <= 0 {
		c.CarSpacing = 7
	}
	if c.Patience <= 0 {
		c.Patience = 100
	}
	if c.RouteAttempts <= 0 {
		c.RouteAttempts = 3
	}
	if c.Router == "" {
		c.Router = RouterLocal
	}
	if c.Signal.DefaultCycle <= 0 {
		c.Signal.DefaultCycle = 40
	}
	if c.Signal.MaxLightsSent <= 0 {
		c.Signal.MaxLightsSent = 500
	}

	config.Control = c
	rc.All = config
	rc.C = c
	return rc
}

// Parse 解析YAML配置
// 功能：严格模式解析配置文件内容并检查输入来源
// 参数：data-YAML文件内容
// 返回：配置对象与错误信息
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return c, err
	}
	if c.Input.Map == nil && c.Input.Grid == nil {
		return c, fmt.Errorf("config: one of input.map or input.grid must be specified")
	}
	if c.Input.Map != nil && c.Input.Grid != nil {
		return c, fmt.Errorf("config: input.map and input.grid are mutually exclusive")
	}
	if r := c.Control.PriorityRatio; r != nil && (*r < 0 || *r > 1) {
		return c, fmt.Errorf("config: priority_ratio %v out of [0, 1]", *r)
	}
	switch c.Control.Router {
	case "", RouterLocal:
	case RouterFiblab:
		if c.Input.Map == nil {
			return c, fmt.Errorf("config: router %q requires input.map", RouterFiblab)
		}
	default:
		return c, fmt.Errorf("config: unknown router %q", c.Control.Router)
	}
	return c, nil
}
