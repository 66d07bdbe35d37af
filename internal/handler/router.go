package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/other-side/backend/internal/handler/dialogue"
	middlewarePkg "github.com/zhouzirui/other-side/backend/internal/middleware"
	aiService "github.com/zhouzirui/other-side/backend/internal/service/ai"
	dialogueService "github.com/zhouzirui/other-side/backend/internal/service/dialogue"
	"github.com/zhouzirui/other-side/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. aiSvc backs the streaming
// endpoint and may be nil.
func NewRouter(dialogueSvc *dialogueService.Service, aiSvc *aiService.Service, logger *zap.Logger, allowedOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigin))

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusMethodNotAllowed, dialogue.MsgMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.RespondError(w, http.StatusNotFound, "Not found")
	})

	dialogueHandler := dialogue.New(dialogueSvc, aiSvc)

	// The bare root mirrors the single-function deployment the web client targets.
	r.Post("/", dialogueHandler.ServeDialogue)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		dialogueHandler.RegisterRoutes(api)
	})

	return r
}
