package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/other-side/backend/internal/logging"
	"github.com/zhouzirui/other-side/backend/pkg/utils"
)

// StreamEvent is one Server-Sent Event on the streaming chat endpoint.
type StreamEvent struct {
	Event    string `json:"event"`
	Content  string `json:"content,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleStream answers a chat turn as a stream of delta events followed by
// the full message. Input errors are reported as plain JSON before the stream opens.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, MsgInvalidJSON)
		return
	}
	if req.Type != "" && req.Type != TypeChat {
		utils.RespondError(w, http.StatusBadRequest, MsgUnknownType)
		return
	}

	if h.llm == nil || !h.llm.StreamingEnabled() {
		utils.RespondError(w, http.StatusServiceUnavailable, "ai streaming unavailable")
		return
	}

	chatReq, err := h.svc.ChatRequest(req.Persona, req.Messages, req.Topic, req.UserStance)
	if err != nil {
		status, payload := h.failure(r.Context(), "chat_stream", err)
		utils.RespondJSON(w, status, payload)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	if timeout := h.llm.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, StreamEvent{Event: "start", Content: req.Persona.Name})

	stream, err := h.llm.Stream(ctx, chatReq)
	if err != nil {
		h.streamFailure(ctx, w, flusher, err)
		return
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 16)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			h.streamFailure(ctx, w, flusher, recvErr)
			return
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			utils.SendSSEChunk(w, flusher, StreamEvent{Event: "delta", Content: chunk.Content})
		}
	}

	response, err := schema.ConcatMessages(chunks)
	if err != nil {
		h.streamFailure(ctx, w, flusher, err)
		return
	}

	utils.SendSSEChunk(w, flusher, StreamEvent{Event: "message", Content: response.Content})
	utils.SendSSEChunk(w, flusher, StreamEvent{Event: "end", Finished: true})

	logging.FromContext(ctx).Info("streamed chat reply",
		zap.String("persona", req.Persona.Name),
		zap.Int("chunks", len(chunks)),
		zap.Int("length", len(response.Content)))
}

func (h *Handler) streamFailure(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, err error) {
	logging.FromContext(ctx).Error("stream error", zap.Error(err))
	utils.SendSSEChunk(w, flusher, StreamEvent{Event: "error", Error: MsgInternal})
}
