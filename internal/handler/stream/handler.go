package stream

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/retailbot/support-widget/internal/handler/view"
	"github.com/retailbot/support-widget/internal/service/engine"
	chatService "github.com/retailbot/support-widget/internal/service/chat"
	"github.com/retailbot/support-widget/pkg/utils"
)

const (
	defaultHeartbeat = 15 * time.Second
	eventBuffer      = 64
)

// Handler streams session events to the widget via Server-Sent Events
type Handler struct {
	chatSvc   *chatService.Service
	log       *logrus.Entry
	heartbeat time.Duration
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, log *logrus.Entry) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		log:       log,
		heartbeat: defaultHeartbeat,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/events", h.handleEvents)
}

// handleEvents sends the current snapshot, then every engine event until the
// client disconnects. A client that falls too far behind is disconnected and
// picks up a fresh snapshot when it reconnects.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	eng, err := h.chatSvc.Engine(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chatService.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log := h.log.WithField("session_id", sessionID)

	events := make(chan engine.Event, eventBuffer)
	overflow := make(chan struct{})
	var once sync.Once
	snapshot, unsubscribe := eng.Subscribe(func(ev engine.Event) {
		select {
		case events <- ev:
		default:
			once.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "snapshot", view.NewSnapshot(snapshot)); err != nil {
		log.WithError(err).Debug("sse write failed")
		return
	}
	log.Debug("sse stream opened")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("sse stream closed by client")
			return
		case <-overflow:
			log.Warn("sse client too slow, closing stream")
			return
		case ev := <-events:
			frame := view.NewFrame(ev)
			if err := utils.SendSSEEvent(w, flusher, frame.Type, frame.Data); err != nil {
				log.WithError(err).Debug("sse write failed")
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
