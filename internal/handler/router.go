package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/handler/assistant"
	"github.com/retailbot/support-widget/internal/handler/chat"
	"github.com/retailbot/support-widget/internal/handler/stream"
	"github.com/retailbot/support-widget/internal/handler/widget"
	middlewarePkg "github.com/retailbot/support-widget/internal/middleware"
	assistantModel "github.com/retailbot/support-widget/internal/model/assistant"
	chatService "github.com/retailbot/support-widget/internal/service/chat"
	"github.com/retailbot/support-widget/pkg/utils"
)

// Deps 路由依赖
type Deps struct {
	Chat            *chatService.Service
	Profile         assistantModel.Profile
	FallbackEnabled bool
	// Gatherer 为空时不挂载 /metrics
	Gatherer prometheus.Gatherer
	Logger   *logrus.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log.WithField("component", "http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": deps.Chat.Count(),
		})
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(api chi.Router) {
		assistant.New(deps.Profile, deps.FallbackEnabled).RegisterRoutes(api)
		chat.New(deps.Chat, log.WithField("component", "chat")).RegisterRoutes(api)
		stream.New(deps.Chat, log.WithField("component", "stream")).RegisterRoutes(api)
		widget.NewWebSocketHandler(deps.Chat, log.WithField("component", "widget")).RegisterRoutes(api)
	})

	return r
}
