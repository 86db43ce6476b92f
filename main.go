package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"git.fiblab.net/sim/syncer/v3"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity/route"
	"github.com/tsinghua-fib-lab/signalsim-oss/server"
	"github.com/tsinghua-fib-lab/signalsim-oss/task"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/config"
	"github.com/tsinghua-fib-lab/signalsim-oss/utils/input"
)

var (
	// 分布式模式syncer地址，如果设置为空则激活独立部署模式
	syncerAddr = flag.String("syncer", "", "syncer address (empty means standalone mode), e.g. http://localhost:53001")
	// 本程序监听的RPC地址
	grpcAddr = flag.String("listen", ":51102", "RPC listening address")
	// 浏览器前端websocket监听地址，设置为空则不启动
	wsAddr = flag.String("ws", ":8080", "websocket listening address (empty means disabled)")
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// 数据加载input的缓存地址，设置为空则禁用缓存功能
	cacheDir = flag.String("cache", "data/", "input cache dir path (empty means disable cache)")
	// 启动后立即以默认车队规模开始仿真
	autostart = flag.Bool("autostart", false, "start a run with the default fleet on launch")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "signalsim")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}

	// 获取配置
	var file []byte
	var err error
	if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else {
		log.Panic("config file or config data must be specified")
	}
	c, err := config.Parse(file)
	if err != nil {
		log.Panicf("config file load err: %v", err)
	}
	log.Infof("%+v", c)
	rc := config.NewRuntimeConfig(c)

	// 路网与导航
	in := input.Init(rc, *cacheDir)
	router, err := route.New(rc.C.Router, in.Network, in.Map)
	if err != nil {
		log.Panicf("router init err: %v", err)
	}

	sidecar := syncer.NewSidecar(task.SelfName, *grpcAddr, *syncerAddr)
	t := task.NewContext(in.Network, router, rc, sidecar)
	server.NewSimulationService(t).Register(sidecar)
	t.ServeSidecar()
	defer t.Close()

	var ws *http.Server
	if *wsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", server.NewWebsocketBridge(t))
		ws = &http.Server{Addr: *wsAddr, Handler: mux}
		go func() {
			log.Infof("websocket listening on %s/ws", *wsAddr)
			if err := ws.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Panicf("websocket server err: %v", err)
			}
		}()
	}

	if *autostart {
		if err := t.StartDefault(); err != nil {
			log.Warnf("autostart: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	t.Run(ctx)

	if ws != nil {
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ws.Shutdown(shutdown); err != nil {
			log.Warnf("websocket shutdown: %v", err)
		}
	}
}
