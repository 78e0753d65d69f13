package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/wikigate/moderation-backend/internal/handler"
	"github.com/wikigate/moderation-backend/internal/middleware"
	"github.com/wikigate/moderation-backend/internal/service"
	pkgjwt "github.com/wikigate/moderation-backend/pkg/jwt"
)

// Setup registers the moderation API routes.
//
// Submission endpoints accept anonymous actors (anonymous edits are a
// normal case for the queue); review endpoints require the moderate
// capability.
func Setup(
	r *gin.Engine,
	jwtMgr *pkgjwt.Manager,
	mh *handler.ModerationHandler,
	nh *handler.NotifyHandler,
) {
	api := r.Group("/api/v1/moderation")

	submit := api.Group("")
	submit.Use(middleware.Auth(jwtMgr, false))
	{
		submit.POST("/edits", mh.SubmitEdit)
		submit.POST("/uploads", mh.SubmitUpload)
		submit.POST("/moves", mh.SubmitMove)
	}

	review := api.Group("")
	review.Use(middleware.Auth(jwtMgr, true), middleware.RequireCap(service.CapModerate))
	{
		review.GET("/pending", mh.ListPending)
		review.GET("/pending/:id", mh.ShowPending)
		review.POST("/pending/:id/approve", mh.Approve)
		review.POST("/pending/:id/reject", mh.Reject)
		review.POST("/pending/:id/merge", mh.Merge)
		review.POST("/approve-all", mh.ApproveAll)
		review.POST("/reject-all", mh.RejectAll)

		review.GET("/blocks", mh.ListBlocks)
		review.POST("/blocks", mh.Block)
		review.DELETE("/blocks/:user_name", mh.Unblock)

		review.GET("/notifications/banner", nh.Banner)
		review.POST("/notifications/seen", nh.MarkSeen)
	}
}
