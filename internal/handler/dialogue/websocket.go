package dialogue

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/other-side/backend/internal/logging"
	"github.com/zhouzirui/other-side/backend/pkg/utils"
)

// SocketReply is one WebSocket reply frame. Body is exactly what the POST
// endpoint would have written for the same request.
type SocketReply struct {
	Status int `json:"status"`
	Body   any `json:"body"`
}

// handleWebSocket 处理WebSocket连接：每个文本帧是一个请求信封，按顺序应答。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context()).Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	logger := logging.FromContext(ctx)
	logger.Info("websocket connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) || errors.Is(err, websocket.ErrCloseSent) {
				logger.Info("websocket closed")
			} else {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			if err := conn.WriteJSON(SocketReply{Status: http.StatusBadRequest, Body: utils.ErrorBody{Error: MsgInvalidJSON}}); err != nil {
				return
			}
			continue
		}

		status, payload := h.Dispatch(ctx, data)
		if err := conn.WriteJSON(SocketReply{Status: status, Body: payload}); err != nil {
			logger.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}
