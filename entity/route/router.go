package route

import (
	"errors"
	"fmt"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/config"
)

// ErrNoPath 起终点之间不可达
var ErrNoPath = errors.New("route: no path")

// New 根据配置初始化导航服务
// 参数：name-导航类型，network-路网，mapData-protobuf地图（合成路网为nil）
// 返回：导航服务与错误信息
func New(name string, network *road.Network, mapData *mapv2.Map) (entity.IRouter, error) {
	switch name {
	case config.RouterLocal:
		return NewLocalRouter(network), nil
	case config.RouterFiblab:
		if mapData == nil {
			return nil, fmt.Errorf("route: %s router requires a protobuf map", name)
		}
		return NewFiblabRouter(network, mapData), nil
	default:
		return nil, fmt.Errorf("route: unknown router %q", name)
	}
}
