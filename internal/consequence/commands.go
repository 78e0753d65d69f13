package consequence

import (
	"context"

	"github.com/wikigate/moderation-backend/internal/contentstore"
	"github.com/wikigate/moderation-backend/internal/domain"
	"github.com/wikigate/moderation-backend/internal/repository"
)

// PendingCache is the notification-cache surface consequences invalidate.
type PendingCache interface {
	Invalidate(ctx context.Context) error
}

// NotificationSink delivers a user-facing notification. The engine only
// specifies the command shape; delivery belongs to the host.
type NotificationSink interface {
	Send(ctx context.Context, userName, code string, params map[string]string) error
}

// QueueEdit inserts or replaces a pending edit. Result is the row id.
type QueueEdit struct {
	Repo repository.QueueRepository
	Row  *domain.PendingChange
}

func (c *QueueEdit) Name() string { return "QueueEdit" }
func (c *QueueEdit) Run(ctx context.Context) (interface{}, error) {
	return c.Repo.Enqueue(ctx, c.Row)
}

// QueueUpload inserts or replaces a pending upload. Result is the row id.
type QueueUpload struct {
	Repo repository.QueueRepository
	Row  *domain.PendingChange
}

func (c *QueueUpload) Name() string { return "QueueUpload" }
func (c *QueueUpload) Run(ctx context.Context) (interface{}, error) {
	return c.Repo.Enqueue(ctx, c.Row)
}

// QueueMove inserts or replaces a pending move. Result is the row id.
type QueueMove struct {
	Repo repository.QueueRepository
	Row  *domain.PendingChange
}

func (c *QueueMove) Name() string { return "QueueMove" }
func (c *QueueMove) Run(ctx context.Context) (interface{}, error) {
	return c.Repo.Enqueue(ctx, c.Row)
}

// DeletePending removes a queue row after a successful approval.
type DeletePending struct {
	Repo repository.QueueRepository
	ID   uint64
}

func (c *DeletePending) Name() string { return "DeletePending" }
func (c *DeletePending) Run(ctx context.Context) (interface{}, error) {
	return nil, c.Repo.Delete(ctx, c.ID)
}

// MarkRejected conditionally rejects one row. Result is whether the
// update changed anything.
type MarkRejected struct {
	Repo     repository.QueueRepository
	ID       uint64
	Reviewer string
	Batch    bool
	Auto     bool
}

func (c *MarkRejected) Name() string { return "MarkRejected" }
func (c *MarkRejected) Run(ctx context.Context) (interface{}, error) {
	return c.Repo.MarkRejected(ctx, c.ID, c.Reviewer, c.Batch, c.Auto)
}

// MarkRejectedBatch rejects every non-terminal row by one author.
// Result is the count changed.
type MarkRejectedBatch struct {
	Repo     repository.QueueRepository
	UserName string
	Reviewer string
}

func (c *MarkRejectedBatch) Name() string { return "MarkRejectedBatch" }
func (c *MarkRejectedBatch) Run(ctx context.Context) (interface{}, error) {
	return c.Repo.MarkRejectedBatch(ctx, c.UserName, c.Reviewer)
}

// MarkMerged conditionally records the revision a conflicted row was
// manually merged into. Result is whether the update changed anything.
type MarkMerged struct {
	Repo  repository.QueueRepository
	ID    uint64
	RevID uint64
}

func (c *MarkMerged) Name() string { return "MarkMerged" }
func (c *MarkMerged) Run(ctx context.Context) (interface{}, error) {
	return c.Repo.MarkMerged(ctx, c.ID, c.RevID)
}

// TagRevision schedules tags durably, pushes them to the content store,
// then marks the schedule applied.
type TagRevision struct {
	Tags  repository.TagRepository
	Store contentstore.ContentStore
	RevID uint64
	Names []string
}

func (c *TagRevision) Name() string { return "TagRevision" }
func (c *TagRevision) Run(ctx context.Context) (interface{}, error) {
	if err := c.Tags.Schedule(ctx, c.RevID, c.Names); err != nil {
		return nil, err
	}
	if err := c.Store.AddTags(ctx, c.RevID, c.Names); err != nil {
		return nil, err
	}
	return nil, c.Tags.MarkApplied(ctx, c.RevID)
}

// BlockUser adds a user to the denylist. Result is whether a row was
// created.
type BlockUser struct {
	Repo      repository.BlockRepository
	UserName  string
	BlockedBy string
}

func (c *BlockUser) Name() string { return "BlockUser" }
func (c *BlockUser) Run(ctx context.Context) (interface{}, error) {
	return c.Repo.Block(ctx, c.UserName, c.BlockedBy)
}

// UnblockUser removes a user from the denylist. Result is whether a row
// was removed.
type UnblockUser struct {
	Repo     repository.BlockRepository
	UserName string
}

func (c *UnblockUser) Name() string { return "UnblockUser" }
func (c *UnblockUser) Run(ctx context.Context) (interface{}, error) {
	return c.Repo.Unblock(ctx, c.UserName)
}

// InvalidatePendingCache drops the cached latest-pending timestamp.
type InvalidatePendingCache struct {
	Cache PendingCache
}

func (c *InvalidatePendingCache) Name() string { return "InvalidatePendingCache" }
func (c *InvalidatePendingCache) Run(ctx context.Context) (interface{}, error) {
	return nil, c.Cache.Invalidate(ctx)
}

// SendNotification notifies a user about a review outcome.
type SendNotification struct {
	Sink     NotificationSink
	UserName string
	Code     string
	Params   map[string]string
}

func (c *SendNotification) Name() string { return "SendNotification" }
func (c *SendNotification) Run(ctx context.Context) (interface{}, error) {
	return nil, c.Sink.Send(ctx, c.UserName, c.Code, c.Params)
}

// WatchPage adds a page to a user's watchlist.
type WatchPage struct {
	Store    contentstore.ContentStore
	UserName string
	Target   contentstore.Target
}

func (c *WatchPage) Name() string { return "WatchPage" }
func (c *WatchPage) Run(ctx context.Context) (interface{}, error) {
	return nil, c.Store.Watch(ctx, c.UserName, c.Target)
}
