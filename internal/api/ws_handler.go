package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"siteCMS/internal/api/middleware"
	"siteCMS/internal/notify"
	"siteCMS/internal/store"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// RevisionLoader 提供连接建立时下发的当前版本号，store.Repository 满足该接口。
type RevisionLoader interface {
	Load(ctx context.Context) (store.Record, error)
}

// WsHandler 把管理端通知（保存、发布结果）转发给已登录的编辑器。
// 鉴权由路由上的 AdminAuthMiddleware 在升级前完成。
type WsHandler struct {
	redisClient    *redis.Client
	revisions      RevisionLoader
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	allowedOrigins []string
}

// NewWsHandler 构造 WebSocket 处理器。allowedOrigins 为空时只接受同源连接。
func NewWsHandler(redisClient *redis.Client, revisions RevisionLoader, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		redisClient:    redisClient,
		revisions:      revisions,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *WsHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, allowed := range h.allowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// HandleConnection 先订阅再升级，保证连接建立后发生的保存都能收到；
// 随后下发 document.current，之后逐条转发通知。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	log := middleware.LoggerFromContext(c).With(slog.String("client_ip", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := notify.Subscribe(ctx, h.redisClient)
	if err != nil {
		log.Error("subscribe admin notifications failed", slog.Any("error", err))
		Internal(c, "Realtime notifications unavailable")
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	go h.readLoop(conn, cancel)

	if rec, err := h.revisions.Load(ctx); err == nil {
		if err := writeJSON(conn, notify.Message{Event: notify.EventDocumentCurrent, Revision: rec.Revision}); err != nil {
			log.Info("websocket closed before hello", slog.Any("error", err))
			return
		}
	} else {
		log.Warn("load current revision failed", slog.Any("error", err))
	}

	log.Info("websocket connected")
	reason := h.forward(ctx, conn, sub.Messages())
	log.Info("websocket connection closed", slog.String("reason", reason))
}

// forward 转发通知并定期发送 ping，返回结束原因。
func (h *WsHandler) forward(ctx context.Context, conn *websocket.Conn, messages <-chan notify.Message) string {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			writeClose(conn, websocket.CloseNormalClosure, "bye")
			return "client gone"
		case msg, ok := <-messages:
			if !ok {
				writeClose(conn, websocket.CloseTryAgainLater, "subscription closed")
				return "subscription closed"
			}
			if err := writeJSON(conn, msg); err != nil {
				return "write failed: " + err.Error()
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return "ping failed: " + err.Error()
			}
		}
	}
}

// readLoop 丢弃客户端消息，只用来处理 pong 并发现断开。
func (h *WsHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, msg notify.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}
