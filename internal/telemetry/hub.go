// Package telemetry 提供模拟事件的实时广播（WebSocket）与 Prometheus 指标。
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pairtrade-backtester/internal/core/model"
	"pairtrade-backtester/internal/core/sim"
)

// 事件类型
const (
	EventSignal = "signal"
	EventTrade  = "trade"
	EventStep   = "step"
)

const (
	writeWait = 5 * time.Second

	// 客户端只发送控制帧
	maxClientMessage = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event 广播消息
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub WebSocket 事件广播中心
// 发布不阻塞：缓冲区满时丢弃消息
type Hub struct {
	clients   map[*websocket.Conn]struct{}
	broadcast chan []byte
	lock      sync.Mutex
	dropped   int64
	logger    *zap.Logger
}

// NewHub 创建广播中心
// 参数 bufferSize: 待发送消息缓冲区大小
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan []byte, bufferSize),
		logger:    logger.Named("telemetry"),
	}
}

// Run 分发消息直到 ctx 取消，退出时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

func (h *Hub) send(msg []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("客户端写入失败，断开连接", zap.Error(err))
			client.Close()
			delete(h.clients, client)
		}
	}
}

func (h *Hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// Publish 序列化并投递事件
func (h *Hub) Publish(eventType string, data any) {
	b, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		h.logger.Warn("事件序列化失败", zap.Error(err), zap.String("type", eventType))
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.lock.Lock()
		h.dropped++
		h.lock.Unlock()
	}
}

// Dropped 因缓冲区满被丢弃的消息数
func (h *Hub) Dropped() int64 {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.dropped
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// Handler 返回挂载 /ws 的 HTTP 处理器
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("WebSocket 升级失败", zap.Error(err))
			return
		}
		h.lock.Lock()
		h.clients[conn] = struct{}{}
		h.lock.Unlock()
		h.logger.Debug("客户端已连接", zap.String("remote", r.RemoteAddr))
		go h.readPump(conn)
	})
	return mux
}

// readPump 处理客户端的 close/ping 帧，读失败即注销
func (h *Hub) readPump(conn *websocket.Conn) {
	defer h.remove(conn)
	conn.SetReadLimit(maxClientMessage)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("客户端读取失败", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

// Serve 在 addr 上提供 Handler，直到 ctx 取消
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("遥测服务启动", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// OnSignal 实现 sim.Observer
func (h *Hub) OnSignal(ev model.SignalEvent) { h.Publish(EventSignal, ev) }

// OnTrade 实现 sim.Observer
func (h *Hub) OnTrade(tr model.TradeRecord) { h.Publish(EventTrade, tr) }

// OnStep 实现 sim.Observer
func (h *Hub) OnStep(st sim.StepRecord) { h.Publish(EventStep, st) }

var _ sim.Observer = (*Hub)(nil)
