package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/Anumulaashok/resume-builder-backend/internal/auth"
	"github.com/Anumulaashok/resume-builder-backend/internal/worker"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongWait     = wsPingInterval + 10*time.Second
	wsWriteWait    = 5 * time.Second
)

// notifySubscriber 订阅用户通知频道，*redis.Client 满足该接口。
type notifySubscriber interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// WsHandler 把后台任务（导出、摘要生成）的完成通知转发给浏览器。
// 连接建立后第一条消息必须在 wsAuthTimeout 内送达，格式为 {"type":"auth","token":"<access token>"}；
// 鉴权成功后服务端回复 {"type":"ready"}。
type WsHandler struct {
	subscriber     notifySubscriber
	authService    *auth.AuthService
	logger         *slog.Logger
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewWsHandler 构造 WebSocket 处理器。allowedOrigins 为空时只接受同源请求。
func NewWsHandler(subscriber notifySubscriber, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	h := &WsHandler{
		subscriber:     subscriber,
		authService:    authService,
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
		if origin == allowed {
			return true
		}
	}
	return false
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsAuthError 携带关闭连接时发给客户端的原因。
type wsAuthError struct {
	reason string
	err    error
}

func (e *wsAuthError) Error() string {
	if e.err != nil {
		return e.reason + ": " + e.err.Error()
	}
	return e.reason
}

func (e *wsAuthError) Unwrap() error { return e.err }

// authenticate 校验首条消息，返回用户 ID。
func (h *WsHandler) authenticate(message []byte) (uint, error) {
	var msg wsAuthMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		return 0, &wsAuthError{reason: "invalid auth payload", err: err}
	}
	if msg.Type != "auth" || msg.Token == "" {
		return 0, &wsAuthError{reason: "auth required"}
	}
	claims, err := h.authService.ValidateToken(msg.Token)
	if err != nil {
		return 0, &wsAuthError{reason: "unauthorized", err: err}
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return 0, &wsAuthError{reason: "access token required"}
	}
	if claims.MustChangePassword {
		return 0, &wsAuthError{reason: "password change required"}
	}
	return claims.UserID, nil
}

// GET /v1/ws
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	log := h.logger.With(slog.String("client_ip", c.ClientIP()))

	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	_, first, err := conn.ReadMessage()
	if err != nil {
		writeClose(conn, websocket.ClosePolicyViolation, "auth timeout")
		log.Info("websocket closed before auth", slog.Any("error", err))
		return
	}
	userID, err := h.authenticate(first)
	if err != nil {
		var authErr *wsAuthError
		reason := "unauthorized"
		if errors.As(err, &authErr) {
			reason = authErr.reason
		}
		writeClose(conn, websocket.ClosePolicyViolation, reason)
		log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}

	log = log.With(slog.Uint64("user_id", uint64(userID)))
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(gin.H{"type": "ready"}); err != nil {
		log.Info("write ready message failed", slog.Any("error", err))
		return
	}
	log.Info("websocket authenticated")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go h.readLoop(conn, errCh, cancel)
	go h.forwardLoop(ctx, conn, userID, errCh, cancel, log)

	<-ctx.Done()
	select {
	case err := <-errCh:
		log.Info("websocket connection closed", slog.Any("error", err))
	default:
		log.Info("websocket connection closed")
	}
}

// readLoop 只用于检测断开与处理 pong，鉴权后的客户端消息被忽略。
func (h *WsHandler) readLoop(conn *websocket.Conn, errCh chan<- error, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			report(errCh, fmt.Errorf("read message: %w", err))
			return
		}
	}
}

// forwardLoop 把用户频道上的通知原样写给客户端，并定期发送 ping。
func (h *WsHandler) forwardLoop(
	ctx context.Context,
	conn *websocket.Conn,
	userID uint,
	errCh chan<- error,
	cancel context.CancelFunc,
	log *slog.Logger,
) {
	defer cancel()

	channel := worker.NotifyChannel(userID)
	pubsub := h.subscriber.Subscribe(ctx, channel)
	defer pubsub.Close()

	messages := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				report(errCh, errors.New("pubsub channel closed"))
				return
			}
			if !json.Valid([]byte(msg.Payload)) {
				log.Warn("dropping malformed notification", slog.String("channel", channel))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				report(errCh, fmt.Errorf("write message: %w", err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				report(errCh, fmt.Errorf("write ping: %w", err))
				return
			}
		}
	}
}

// report 非阻塞地上报连接结束原因，只保留先到的。
func report(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}
