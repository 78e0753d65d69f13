package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wikigate/moderation-backend/internal/common"
	"github.com/wikigate/moderation-backend/internal/middleware"
	"github.com/wikigate/moderation-backend/internal/repository"
	"github.com/wikigate/moderation-backend/internal/service"
)

// ModerationHandler exposes the moderation queue API
type ModerationHandler struct {
	queue *service.QueueService
	mod   *service.ModerationService
}

// NewModerationHandler creates a new ModerationHandler
func NewModerationHandler(queue *service.QueueService, mod *service.ModerationService) *ModerationHandler {
	return &ModerationHandler{queue: queue, mod: mod}
}

type editIn struct {
	Namespace int      `json:"namespace"`
	Title     string   `json:"title" binding:"required"`
	Text      string   `json:"text"`
	Summary   string   `json:"summary"`
	Minor     bool     `json:"minor"`
	Bot       bool     `json:"bot"`
	BaseRevID uint64   `json:"base_rev_id"`
	Watch     bool     `json:"watch"`
	Tags      []string `json:"tags"`
}

// SubmitEdit handles POST /edits
func (h *ModerationHandler) SubmitEdit(c *gin.Context) {
	var in editIn
	if err := c.ShouldBindJSON(&in); err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	res, err := h.queue.InterceptEdit(c.Request.Context(), service.EditRequest{
		Actor:     middleware.GetActor(c),
		Namespace: in.Namespace,
		Title:     in.Title,
		Text:      in.Text,
		Summary:   in.Summary,
		Minor:     in.Minor,
		Bot:       in.Bot,
		BaseRevID: in.BaseRevID,
		Watch:     in.Watch,
		Tags:      in.Tags,
	})
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	common.CreatedResponse(c, res)
}

type uploadIn struct {
	Namespace int      `json:"namespace"`
	Title     string   `json:"title" binding:"required"`
	StashKey  string   `json:"stash_key" binding:"required"`
	Comment   string   `json:"comment"`
	PageText  string   `json:"page_text"`
	Watch     bool     `json:"watch"`
	Tags      []string `json:"tags"`
}

// SubmitUpload handles POST /uploads
func (h *ModerationHandler) SubmitUpload(c *gin.Context) {
	var in uploadIn
	if err := c.ShouldBindJSON(&in); err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	res, err := h.queue.InterceptUpload(c.Request.Context(), service.UploadRequest{
		Actor:     middleware.GetActor(c),
		Namespace: in.Namespace,
		Title:     in.Title,
		StashKey:  in.StashKey,
		Comment:   in.Comment,
		PageText:  in.PageText,
		Watch:     in.Watch,
		Tags:      in.Tags,
	})
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	common.CreatedResponse(c, res)
}

type moveIn struct {
	Namespace    int      `json:"namespace"`
	Title        string   `json:"title" binding:"required"`
	DstNamespace int      `json:"dst_namespace"`
	DstTitle     string   `json:"dst_title" binding:"required"`
	Reason       string   `json:"reason"`
	Watch        bool     `json:"watch"`
	Tags         []string `json:"tags"`
}

// SubmitMove handles POST /moves
func (h *ModerationHandler) SubmitMove(c *gin.Context) {
	var in moveIn
	if err := c.ShouldBindJSON(&in); err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	res, err := h.queue.InterceptMove(c.Request.Context(), service.MoveRequest{
		Actor:        middleware.GetActor(c),
		Namespace:    in.Namespace,
		Title:        in.Title,
		DstNamespace: in.DstNamespace,
		DstTitle:     in.DstTitle,
		Reason:       in.Reason,
		Watch:        in.Watch,
		Tags:         in.Tags,
	})
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	common.CreatedResponse(c, res)
}

// ListPending handles GET /pending
func (h *ModerationHandler) ListPending(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, total, err := h.mod.List(c.Request.Context(), repository.ListFilter{
		Folder:   c.Query("folder"),
		UserName: c.Query("user"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	common.SuccessWithMeta(c, rows, common.NewMeta(page, limit, total))
}

// ShowPending handles GET /pending/:id — the read-only diff view; it
// stays available in read-only mode.
func (h *ModerationHandler) ShowPending(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	detail, err := h.mod.GetPending(c.Request.Context(), id)
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	common.SuccessResponse(c, detail)
}

// Approve handles POST /pending/:id/approve
func (h *ModerationHandler) Approve(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	outcome, err := h.mod.Approve(c.Request.Context(), id, middleware.GetActor(c))
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	common.SuccessResponse(c, outcome)
}

type batchIn struct {
	UserName string `json:"user_name" binding:"required"`
}

// ApproveAll handles POST /approve-all
func (h *ModerationHandler) ApproveAll(c *gin.Context) {
	var in batchIn
	if err := c.ShouldBindJSON(&in); err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	outcome, err := h.mod.ApproveAll(c.Request.Context(), in.UserName, middleware.GetActor(c))
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	common.SuccessResponse(c, outcome)
}

// Reject handles POST /pending/:id/reject
func (h *ModerationHandler) Reject(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	if err := h.mod.Reject(c.Request.Context(), id, middleware.GetActor(c)); err != nil {
		common.FailResponse(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"rejected": id})
}

// RejectAll handles POST /reject-all
func (h *ModerationHandler) RejectAll(c *gin.Context) {
	var in batchIn
	if err := c.ShouldBindJSON(&in); err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	count, err := h.mod.RejectAll(c.Request.Context(), in.UserName, middleware.GetActor(c))
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"rejected": count})
}

type mergeIn struct {
	Text string `json:"text" binding:"required"`
}

// Merge handles POST /pending/:id/merge
func (h *ModerationHandler) Merge(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	var in mergeIn
	if err := c.ShouldBindJSON(&in); err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	outcome, err := h.mod.Merge(c.Request.Context(), id, middleware.GetActor(c), in.Text)
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	common.SuccessResponse(c, outcome)
}

// Block handles POST /blocks
func (h *ModerationHandler) Block(c *gin.Context) {
	var in batchIn
	if err := c.ShouldBindJSON(&in); err != nil {
		common.FailResponse(c, common.ErrInvalidInput)
		return
	}
	if err := h.mod.Block(c.Request.Context(), in.UserName, middleware.GetActor(c)); err != nil {
		common.FailResponse(c, err)
		return
	}
	common.CreatedResponse(c, gin.H{"blocked": in.UserName})
}

// Unblock handles DELETE /blocks/:user_name
func (h *ModerationHandler) Unblock(c *gin.Context) {
	userName := c.Param("user_name")
	if err := h.mod.Unblock(c.Request.Context(), userName, middleware.GetActor(c)); err != nil {
		common.FailResponse(c, err)
		return
	}
	common.SuccessResponse(c, gin.H{"unblocked": userName})
}

// ListBlocks handles GET /blocks
func (h *ModerationHandler) ListBlocks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	blocks, total, err := h.mod.ListBlocks(c.Request.Context(), page, limit)
	if err != nil {
		common.FailResponse(c, err)
		return
	}
	common.SuccessWithMeta(c, blocks, common.NewMeta(page, limit, total))
}
