package common

import (
	"errors"
	"net/http"
)

// Error is a machine-readable engine error with a stable code suitable
// for programmatic consumers; the caller owns human-facing rendering.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Code }

// Engine errors
var (
	ErrNotFound            = &Error{Code: "moderation-edit-not-found", Status: http.StatusNotFound, Message: "pending change not found"}
	ErrAlreadyRejected     = &Error{Code: "moderation-already-rejected", Status: http.StatusConflict, Message: "pending change was already rejected"}
	ErrRejectedLongAgo     = &Error{Code: "moderation-rejected-long-ago", Status: http.StatusConflict, Message: "pending change was rejected too long ago to approve"}
	ErrAlreadyMerged       = &Error{Code: "moderation-already-merged", Status: http.StatusConflict, Message: "pending change was already merged"}
	ErrEditConflict        = &Error{Code: "moderation-edit-conflict", Status: http.StatusConflict, Message: "page changed since the edit was queued; manual merge required"}
	ErrMergeNotNeeded      = &Error{Code: "moderation-merge-not-needed", Status: http.StatusBadRequest, Message: "pending change has no conflict to merge"}
	ErrMergeNotAllowed     = &Error{Code: "moderation-merge-not-allowed", Status: http.StatusForbidden, Message: "merging requires the skip-moderation capability"}
	ErrMoveNotAllowed      = &Error{Code: "moderation-move-not-allowed", Status: http.StatusForbidden, Message: "reviewer is not authorized to perform moves"}
	ErrMoveTargetExists    = &Error{Code: "moderation-move-target-exists", Status: http.StatusConflict, Message: "move destination already exists"}
	ErrMissingStashedImage = &Error{Code: "moderation-missing-stashed-image", Status: http.StatusNotFound, Message: "staged upload no longer exists"}
	ErrNothingToApproveAll = &Error{Code: "moderation-nothing-to-approveall", Status: http.StatusNotFound, Message: "no pending changes to approve for this user"}
	ErrNothingToRejectAll  = &Error{Code: "moderation-nothing-to-rejectall", Status: http.StatusNotFound, Message: "no pending changes to reject for this user"}
	ErrReadOnly            = &Error{Code: "moderation-readonly", Status: http.StatusServiceUnavailable, Message: "content store is in read-only mode"}
	ErrAlreadyBlocked      = &Error{Code: "moderation-already-blocked", Status: http.StatusConflict, Message: "user is already blocked"}
	ErrBlockNotFound       = &Error{Code: "moderation-block-not-found", Status: http.StatusNotFound, Message: "user is not blocked"}
	ErrNotLoggedIn         = &Error{Code: "moderation-not-logged-in", Status: http.StatusUnauthorized, Message: "authentication required"}
	ErrNotModerator        = &Error{Code: "moderation-not-moderator", Status: http.StatusForbidden, Message: "moderator capability required"}
	ErrInvalidInput        = &Error{Code: "moderation-invalid-input", Status: http.StatusBadRequest, Message: "invalid request"}
	ErrUpstream            = &Error{Code: "moderation-store-error", Status: http.StatusBadGateway, Message: "content store rejected the operation"}
)

// AsError unwraps err to an engine *Error if it is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Upstream wraps a content-store failure, keeping the verbatim message
// for the reviewer while exposing the stable code.
func Upstream(err error) *Error {
	return &Error{Code: ErrUpstream.Code, Status: ErrUpstream.Status, Message: err.Error()}
}
