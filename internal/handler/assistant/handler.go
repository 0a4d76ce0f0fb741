package assistant

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/retailbot/support-widget/internal/model/assistant"
	"github.com/retailbot/support-widget/pkg/utils"
)

// Handler 助手资料的HTTP处理器
type Handler struct {
	profile         assistant.Profile
	fallbackEnabled bool
}

// New 创建助手处理器
func New(profile assistant.Profile, fallbackEnabled bool) *Handler {
	return &Handler{
		profile:         profile,
		fallbackEnabled: fallbackEnabled,
	}
}

// RegisterRoutes 注册助手相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/assistant", h.handleGetAssistant)
}

type profileResponse struct {
	assistant.Profile
	OpeningMessage  string `json:"openingMessage"`
	FallbackEnabled bool   `json:"fallbackEnabled"`
}

func (h *Handler) handleGetAssistant(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, profileResponse{
		Profile:         h.profile,
		OpeningMessage:  h.profile.OpeningMessage(),
		FallbackEnabled: h.fallbackEnabled,
	})
}
