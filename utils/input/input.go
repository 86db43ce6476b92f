package input

import (
	"context"

	"git.fiblab.net/general/common/v2/cache"
	"git.fiblab.net/general/common/v2/mongoutil"
	"git.fiblab.net/general/common/v2/protoutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/road"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"google.golang.org/protobuf/proto"
)

// Input 输入数据
// 功能：存储仿真所需的路网，以及路网来源为地图时的原始地图
type Input struct {
	Map     *mapv2.Map // 原始地图，合成网格时为nil
	Network *road.Network
}

// Init 加载数据
// 功能：根据配置加载地图并构建路网，任何失败都会panic（启动阶段唯一的致命错误）
// 参数：rc-运行时配置，cacheDir-缓存目录
// 返回：加载完成的输入数据指针
// 算法说明：
// 1. 合成网格：直接生成路网
// 2. 地图文件：从文件加载地图
// 3. 数据库：从MongoDB加载地图，优先使用缓存
// 4. 地图转换为路网
func Init(rc *config.RuntimeConfig, cacheDir string) (res *Input) {
	in := rc.All.Input
	c := rc.C
	res = &Input{}

	if in.Grid != nil {
		network, err := road.NewGrid(in.Grid.Rows, in.Grid.Cols, in.Grid.Spacing, c.FreeFlowSpeed, c.CarSpacing)
		if err != nil {
			log.Panicf("failed to build grid: %v", err)
		}
		log.Infof("grid %dx%d, spacing %.1fm", in.Grid.Rows, in.Grid.Cols, in.Grid.Spacing)
		res.Network = network
		return
	}

	if in.Map.File != "" {
		var m mapv2.Map
		if err := protoutil.UnmarshalFromFile(&m, in.Map.File); err != nil {
			log.Panicf("failed to load map from file: %v", err)
		}
		res.Map = &m
	} else {
		useCache := preCheckCache(cacheDir)
		if !useCache {
			cacheDir = ""
		}
		var client *mongo.Client
		if in.URI != "" {
			client = mongoutil.NewClient(in.URI)
			defer client.Disconnect(context.Background())
		}
		res.Map = mustLoad[mapv2.Map](client, *in.Map, cacheDir, nil, nil)
	}

	log.Infof("Lane: %v", len(res.Map.Lanes))
	log.Infof("Road: %v", len(res.Map.Roads))
	log.Infof("Junction: %v", len(res.Map.Junctions))

	network, err := road.NewNetworkFromPb(res.Map, c.FreeFlowSpeed, c.CarSpacing)
	if err != nil {
		log.Panicf("failed to convert map: %v", err)
	}
	res.Network = network
	return
}

// mustLoad 必须加载数据（泛型函数）
// 功能：从MongoDB或缓存中加载数据
// 参数：client-MongoDB客户端，inputPath-输入路径配置，cacheDir-缓存目录，classNameMapper-类名映射器，handler-数据处理函数，opts-查询选项
// 返回：加载的数据对象
// 算法说明：
// 1. 获取MongoDB集合：根据输入路径配置获取集合
// 2. 定义下载函数：如果不需要仅缓存则定义下载逻辑
// 3. 缓存加载：使用缓存机制加载数据
// 4. 错误处理：如果加载失败则panic
func mustLoad[T any, PT interface {
	proto.Message
	*T
}](
	client *mongo.Client,
	inputPath config.InputPath,
	cacheDir string,
	classNameMapper func(string) string,
	handler func(className string, pb any, rawBson bson.Raw) error,
	opts ...*options.FindOptions,
) (res PT) {
	var downloadFunc func() PT
	var err error
	if !inputPath.OnlyCache {
		if client == nil {
			log.Panicf("%s.%s is not cached and no mongo uri is configured", inputPath.DB, inputPath.Col)
		}
		coll := mongoutil.GetMongoColl(client, inputPath)
		downloadFunc = func() PT {
			pb, errs := mongoutil.DownloadPbFromMongo[T, PT](context.Background(), coll, classNameMapper, handler, opts...)
			if len(errs) > 0 {
				for _, err := range errs {
					log.Errorf("failed to download: %v", err)
				}
				log.Panicln("failed to download")
			}
			return pb
		}
	}
	log.Infof("start fetching from %s.%s", inputPath.DB, inputPath.Col)
	res, err = cache.LoadWithCache(cacheDir, inputPath, downloadFunc)
	if err != nil {
		log.Panicf("failed to load with cache: %v", err)
	}
	log.Infof("finish fetching from %s.%s", inputPath.DB, inputPath.Col)
	return
}
