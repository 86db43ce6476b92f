package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tsinghua-fib-lab/signalsim-oss/entity"
)

// 推送事件名
const (
	EventInitData    = "init_data"
	EventUpdate      = "update"
	EventStartSim    = "start_sim"
	EventStopSim     = "stop_sim"
	EventToggleAI    = "toggle_ai"
	EventAddRoadwork = "add_roadwork"
)

const (
	writeWait         = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultPingPeriod = defaultPongWait * 9 / 10
	maxMessageSize    = 4096
	updateBuffer      = 4
)

var errUnknownEvent = errors.New("unknown event")

// envelope 前端消息格式：{"event": 事件名, "data": 参数}
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type startSimData struct {
	Nb *int `json:"nb"` // 未填写时使用默认车队规模
}

type toggleAIData struct {
	Active bool `json:"active"`
}

type addRoadworkData struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WebsocketBridge 浏览器前端的websocket推送
// 功能：连接时下发地图展示信息，之后推送每次发布的快照，并把前端事件转为仿真命令
// 说明：
//  1. 每个连接一个订阅者，前端读取慢时丢弃中间快照
//  2. 无法解析或被拒绝的前端事件直接丢弃
type WebsocketBridge struct {
	sim      Simulation
	upgrader websocket.Upgrader

	pongWait   time.Duration // 超过该时长未收到消息或pong则断开
	pingPeriod time.Duration
}

func NewWebsocketBridge(sim Simulation) *WebsocketBridge {
	return &WebsocketBridge{
		sim: sim,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pongWait:   defaultPongWait,
		pingPeriod: defaultPingPeriod,
	}
}

func (b *WebsocketBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()
	log.Infof("websocket client %s connected", r.RemoteAddr)

	sub := b.sim.Subscribe(updateBuffer)
	defer b.sim.Unsubscribe(sub)

	if err := write(conn, EventInitData, b.sim.MapInfo()); err != nil {
		log.Debugf("websocket init_data: %v", err)
		return
	}
	if latest := b.sim.Latest(); latest != nil {
		if err := write(conn, EventUpdate, latest); err != nil {
			return
		}
	}

	// 读协程退出后通知写协程发送关闭帧，等待其退出后才关闭连接
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		b.writeLoop(conn, sub.C(), done)
	}()
	b.readLoop(conn)
	close(done)
	<-stopped
	log.Infof("websocket client %s disconnected", r.RemoteAddr)
}

// write 发送一个事件，调用方需保证同一时刻只有一个协程写连接
func write(conn *websocket.Conn, event string, data any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(outEnvelope{Event: event, Data: data})
}

// writeLoop 推送快照与心跳，连接的唯一写协程
func (b *WebsocketBridge) writeLoop(conn *websocket.Conn, updates <-chan *entity.Snapshot, done <-chan struct{}) {
	ticker := time.NewTicker(b.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case snapshot := <-updates:
			if err := write(conn, EventUpdate, snapshot); err != nil {
				log.Debugf("websocket update: %v", err)
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// readLoop 读取前端事件直到连接断开
func (b *WebsocketBridge) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(b.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(b.pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("websocket read: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(b.pongWait))
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debugf("websocket message dropped: %v", err)
			continue
		}
		if err := b.dispatch(env); err != nil {
			log.Debugf("websocket event %q dropped: %v", env.Event, err)
		}
	}
}

// dispatch 将前端事件转为仿真命令
func (b *WebsocketBridge) dispatch(env envelope) error {
	switch env.Event {
	case EventStartSim:
		var d startSimData
		if err := unmarshalData(env.Data, &d); err != nil {
			return err
		}
		if d.Nb == nil {
			return b.sim.StartDefault()
		}
		return b.sim.Start(*d.Nb)
	case EventStopSim:
		return b.sim.Stop()
	case EventToggleAI:
		var d toggleAIData
		if err := unmarshalData(env.Data, &d); err != nil {
			return err
		}
		return b.sim.ToggleAdaptive(d.Active)
	case EventAddRoadwork:
		var d addRoadworkData
		if err := unmarshalData(env.Data, &d); err != nil {
			return err
		}
		return b.sim.AddRoadwork(d.X, d.Y)
	default:
		return errUnknownEvent
	}
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
