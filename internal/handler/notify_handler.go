package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wikigate/moderation-backend/internal/common"
	"github.com/wikigate/moderation-backend/internal/middleware"
	"github.com/wikigate/moderation-backend/internal/service"
)

// NotifyHandler exposes the "new pending changes" banner API
type NotifyHandler struct {
	notify *service.NotifyService
}

// NewNotifyHandler creates a new NotifyHandler
func NewNotifyHandler(notify *service.NotifyService) *NotifyHandler {
	return &NotifyHandler{notify: notify}
}

// Banner handles GET /notifications/banner
func (h *NotifyHandler) Banner(c *gin.Context) {
	actor := middleware.GetActor(c)
	show, err := h.notify.ShowBanner(c.Request.Context(), actor.Name)
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	pending, err := h.notify.LatestPending(c.Request.Context())
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	out := gin.H{"show": show}
	if pending != nil {
		out["latest_pending"] = pending.Format(time.RFC3339Nano)
	}
	common.SuccessResponse(c, out)
}

// MarkSeen handles POST /notifications/seen
func (h *NotifyHandler) MarkSeen(c *gin.Context) {
	actor := middleware.GetActor(c)
	now := time.Now()
	if err := h.notify.SetLastSeen(c.Request.Context(), actor.Name, now); err != nil {
		common.FailResponse(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"seen": now.Format(time.RFC3339Nano)})
}
