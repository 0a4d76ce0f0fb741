package chat

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/handler/view"
	"github.com/retailbot/support-widget/internal/model/chat"
	chatService "github.com/retailbot/support-widget/internal/service/chat"
	"github.com/retailbot/support-widget/pkg/utils"
)

const maxBodyBytes = 16 << 10

// Handler 会话接口的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	log     *logrus.Entry
}

// New 创建会话处理器
func New(chatSvc *chatService.Service, log *logrus.Entry) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		log:     log,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Get("/sessions/{sessionID}", h.handleGetSession)
	r.Delete("/sessions/{sessionID}", h.handleCloseSession)
	r.Post("/sessions/{sessionID}/messages", h.handleSubmit)
	r.Post("/sessions/{sessionID}/reset", h.handleReset)
}

type submitResponse struct {
	Accepted     bool       `json:"accepted"`
	State        chat.State `json:"state"`
	InputEnabled bool       `json:"inputEnabled"`
}

// handleCreateSession 创建会话，displayName 可选
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		DisplayName string `json:"displayName"`
	}

	if err := decodeOptional(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.chatSvc.CreateSession(r.Context(), payload.DisplayName)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	eng, err := h.chatSvc.Engine(r.Context(), session.ID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, view.NewSnapshot(eng.Snapshot()))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	eng, err := h.chatSvc.Engine(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, view.NewSnapshot(eng.Snapshot()))
}

// handleSubmit 提交一条用户消息，回复通过事件流异步送达
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accepted, state, err := h.chatSvc.Submit(r.Context(), chi.URLParam(r, "sessionID"), payload.Content)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusAccepted, submitResponse{
		Accepted:     accepted,
		State:        state,
		InputEnabled: state.AcceptsInput(),
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.chatSvc.Reset(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, view.NewSnapshot(snapshot))
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, chatService.ErrSessionBusy) {
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	}
	h.log.WithError(err).Error("chat request failed")
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}

// decodeOptional 允许空请求体
func decodeOptional(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
