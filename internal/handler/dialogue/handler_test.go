package dialogue

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/other-side/backend/internal/service/ai"
	"github.com/zhouzirui/other-side/backend/internal/service/ai/aitest"
	dialogueService "github.com/zhouzirui/other-side/backend/internal/service/dialogue"
)

const testPersona = `{"name":"Rosa Méndez","age":38,"occupation":"ER nurse","location":"El Paso, Texas","stance":"Border towns need more legal pathways, not more walls.","oneLineSummary":"A nurse who treats migrants and border agents in the same shift.","coreBeliefs":["Dignity for everyone who comes through the door","Local voices over national slogans","Order and compassion can coexist"]}`

const chatBody = `{"type":"chat","persona":` + testPersona + `,"messages":[{"role":"assistant","content":"Hi, I'm Rosa."},{"role":"user","content":"Shouldn't we secure the border first?"}],"topic":"Immigration"}`

func setupRouter(fake *aitest.FakeModel, streaming bool) (*chi.Mux, *Handler) {
	llm := ai.NewService(fake.Factory(), ai.Options{Streaming: streaming})
	h := New(dialogueService.NewService(llm, dialogueService.Generations{}), llm)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, h
}

func readEvents(t *testing.T, body string) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestStreamEmitsDeltasAndMessage(t *testing.T) {
	fake := aitest.New("Secure it how, though? I see both sides every night.")
	r, _ := setupRouter(fake, true)

	req := httptest.NewRequest(http.MethodPost, "/dialogue/stream", strings.NewReader(chatBody))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := readEvents(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, "start", events[0].Event)
	assert.Equal(t, "Rosa Méndez", events[0].Content)

	var deltas strings.Builder
	for _, ev := range events[1 : len(events)-2] {
		assert.Equal(t, "delta", ev.Event)
		deltas.WriteString(ev.Content)
	}
	assert.Equal(t, "Secure it how, though? I see both sides every night.", deltas.String())

	message := events[len(events)-2]
	assert.Equal(t, "message", message.Event)
	assert.Equal(t, deltas.String(), message.Content)
	assert.True(t, events[len(events)-1].Finished)
}

func TestStreamValidatesBeforeOpening(t *testing.T) {
	fake := aitest.New("unused")
	r, _ := setupRouter(fake, true)

	req := httptest.NewRequest(http.MethodPost, "/dialogue/stream", strings.NewReader(`{"persona":`+testPersona+`,"messages":[]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "persona and messages are required")
	assert.Empty(t, fake.Calls())
}

func TestStreamRejectsOtherTypes(t *testing.T) {
	r, _ := setupRouter(aitest.New("unused"), true)

	req := httptest.NewRequest(http.MethodPost, "/dialogue/stream", strings.NewReader(`{"type":"reflection"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), MsgUnknownType)
}

func TestStreamDisabled(t *testing.T) {
	r, _ := setupRouter(aitest.New("unused"), false)

	req := httptest.NewRequest(http.MethodPost, "/dialogue/stream", strings.NewReader(chatBody))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStreamUpstreamFailureIsGeneric(t *testing.T) {
	r, _ := setupRouter(aitest.Failing(errors.New("quota exceeded for key sk-123")), true)

	req := httptest.NewRequest(http.MethodPost, "/dialogue/stream", strings.NewReader(chatBody))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	events := readEvents(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "error", last.Event)
	assert.Equal(t, MsgInternal, last.Error)
	assert.NotContains(t, rec.Body.String(), "sk-123")
}

func TestWebSocketDispatchesEnvelopes(t *testing.T) {
	fake := aitest.New("Secure it how, though?")
	r, _ := setupRouter(fake, false)
	server := httptest.NewServer(r)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(chatBody)))
	var reply struct {
		Status int          `json:"status"`
		Body   ChatResponse `json:"body"`
	}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, http.StatusOK, reply.Status)
	assert.Equal(t, "Secure it how, though?", reply.Body.Reply)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`)))
	var failure struct {
		Status int               `json:"status"`
		Body   map[string]string `json:"body"`
	}
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, http.StatusBadRequest, failure.Status)
	assert.Equal(t, MsgUnknownType, failure.Body["error"])

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, MsgInvalidJSON, failure.Body["error"])

	assert.Len(t, fake.Calls(), 1)
}
