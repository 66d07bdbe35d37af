package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/other-side/backend/internal/logging"
	"github.com/zhouzirui/other-side/backend/internal/model/chat"
	"github.com/zhouzirui/other-side/backend/internal/model/persona"
	"github.com/zhouzirui/other-side/backend/internal/service/ai"
	dialogueService "github.com/zhouzirui/other-side/backend/internal/service/dialogue"
	"github.com/zhouzirui/other-side/backend/pkg/utils"
)

// Request types accepted in the "type" discriminator.
const (
	TypeGeneratePersona = "generate_persona"
	TypeChat            = "chat"
	TypeReflection      = "reflection"
)

// Client-facing error messages.
const (
	MsgInvalidJSON      = "Invalid JSON"
	MsgInvalidBody      = "Invalid request body"
	MsgBodyTooLarge     = "Request body too large"
	MsgUnknownType      = "Unknown request type"
	MsgInternal         = "Internal server error"
	MsgMethodNotAllowed = "Method not allowed"
)

const maxBodyBytes = 1 << 20

// PersonaRequest is the generate_persona body.
type PersonaRequest struct {
	Type       string `json:"type"`
	Topic      string `json:"topic"`
	UserStance string `json:"userStance,omitempty"`
}

// ChatRequest is the chat body.
type ChatRequest struct {
	Type       string           `json:"type"`
	Persona    *persona.Persona `json:"persona"`
	Messages   []chat.Message   `json:"messages"`
	Topic      string           `json:"topic"`
	UserStance string           `json:"userStance,omitempty"`
}

// ReflectionRequest is the reflection body.
type ReflectionRequest struct {
	Type     string           `json:"type"`
	Persona  *persona.Persona `json:"persona"`
	Messages []chat.Message   `json:"messages"`
	Topic    string           `json:"topic"`
}

// PersonaResponse wraps a generated persona.
type PersonaResponse struct {
	Persona persona.Persona `json:"persona"`
}

// ChatResponse wraps one reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ReflectionResponse wraps the reflection questions.
type ReflectionResponse struct {
	Questions []string `json:"questions"`
}

type envelope struct {
	Type string `json:"type"`
}

// Handler 对话练习服务的HTTP处理器
type Handler struct {
	svc      *dialogueService.Service
	llm      *ai.Service
	upgrader websocket.Upgrader
}

// New 创建对话处理器。llm 仅用于流式接口，可为 nil。
func New(svc *dialogueService.Service, llm *ai.Service) *Handler {
	return &Handler{
		svc: svc,
		llm: llm,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册对话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/dialogue", h.ServeDialogue)
	r.Post("/dialogue/stream", h.handleStream)
	r.Get("/ws", h.handleWebSocket)
}

// ServeDialogue is the single POST entry point dispatching on "type".
func (h *Handler) ServeDialogue(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusBadRequest, MsgBodyTooLarge)
			return
		}
		utils.RespondError(w, http.StatusBadRequest, MsgInvalidJSON)
		return
	}

	status, payload := h.Dispatch(r.Context(), raw)
	utils.RespondJSON(w, status, payload)
}

// Dispatch decodes one request envelope, runs the matching operation and
// returns the HTTP status with the JSON payload to send. It is shared by the
// POST endpoint and the WebSocket transport.
func (h *Handler) Dispatch(ctx context.Context, raw []byte) (int, any) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return http.StatusBadRequest, utils.ErrorBody{Error: MsgInvalidJSON}
	}

	switch env.Type {
	case TypeGeneratePersona:
		var req PersonaRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return http.StatusBadRequest, utils.ErrorBody{Error: MsgInvalidBody}
		}
		generated, err := h.svc.GeneratePersona(ctx, req.Topic, req.UserStance)
		if err != nil {
			return h.failure(ctx, env.Type, err)
		}
		return http.StatusOK, PersonaResponse{Persona: generated}

	case TypeChat:
		var req ChatRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return http.StatusBadRequest, utils.ErrorBody{Error: MsgInvalidBody}
		}
		reply, err := h.svc.Chat(ctx, req.Persona, req.Messages, req.Topic, req.UserStance)
		if err != nil {
			return h.failure(ctx, env.Type, err)
		}
		return http.StatusOK, ChatResponse{Reply: reply}

	case TypeReflection:
		var req ReflectionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return http.StatusBadRequest, utils.ErrorBody{Error: MsgInvalidBody}
		}
		questions, err := h.svc.Reflect(ctx, req.Persona, req.Messages, req.Topic)
		if err != nil {
			return h.failure(ctx, env.Type, err)
		}
		return http.StatusOK, ReflectionResponse{Questions: questions}

	default:
		return http.StatusBadRequest, utils.ErrorBody{Error: MsgUnknownType}
	}
}

// failure is the shared error boundary: input errors keep their message,
// everything else is logged and collapsed to a generic 500.
func (h *Handler) failure(ctx context.Context, requestType string, err error) (int, any) {
	if dialogueService.IsValidation(err) {
		return http.StatusBadRequest, utils.ErrorBody{Error: err.Error()}
	}
	logging.FromContext(ctx).Error("handler error",
		zap.String("type", requestType),
		zap.Error(err))
	return http.StatusInternalServerError, utils.ErrorBody{Error: MsgInternal}
}
