package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wikigate/moderation-backend/internal/common"
	"github.com/wikigate/moderation-backend/internal/consequence"
	"github.com/wikigate/moderation-backend/internal/contentstore"
	"github.com/wikigate/moderation-backend/internal/domain"
	"github.com/wikigate/moderation-backend/internal/repository"
)

// EditRequest is an incoming edit to intercept.
type EditRequest struct {
	Actor     Actor
	Namespace int
	Title     string
	Text      string
	Summary   string
	Minor     bool
	Bot       bool
	BaseRevID uint64
	Watch     bool
	// Tags assigned by upstream content-classification filters.
	Tags []string
}

// UploadRequest is an incoming file upload to intercept.
type UploadRequest struct {
	Actor     Actor
	Namespace int
	Title     string
	StashKey  string
	Comment   string
	PageText  string
	Watch     bool
	Tags      []string
}

// MoveRequest is an incoming page rename to intercept.
type MoveRequest struct {
	Actor        Actor
	Namespace    int
	Title        string
	DstNamespace int
	DstTitle     string
	Reason       string
	Watch        bool
	Tags         []string
}

// InterceptResult reports what happened to an incoming change.
type InterceptResult struct {
	// Queued is false when the policy let the change bypass the queue;
	// the caller applies it directly.
	Queued bool `json:"queued"`
	// ID is the queue row id when Queued.
	ID uint64 `json:"id,omitempty"`
	// Spam is true when the change was auto-rejected via a block.
	Spam bool `json:"spam,omitempty"`
	// AnonToken is a freshly issued anonymous preload token the front
	// door must store in the actor's session, empty otherwise.
	AnonToken string `json:"anon_token,omitempty"`
}

// QueueService intercepts content-changing operations and defers them
// into the moderation queue.
type QueueService struct {
	repo   repository.QueueRepository
	blocks repository.BlockRepository
	store  contentstore.ContentStore
	policy *Policy
	notify *NotifyService
	cm     consequence.Manager
	log    zerolog.Logger

	// now is the clock; tests override it.
	now func() time.Time
}

// NewQueueService creates a new QueueService
func NewQueueService(
	repo repository.QueueRepository,
	blocks repository.BlockRepository,
	store contentstore.ContentStore,
	policy *Policy,
	notify *NotifyService,
	cm consequence.Manager,
	log zerolog.Logger,
) *QueueService {
	return &QueueService{
		repo:   repo,
		blocks: blocks,
		store:  store,
		policy: policy,
		notify: notify,
		cm:     cm,
		log:    log,
		now:    time.Now,
	}
}

// InterceptEdit queues an edit unless the policy lets it through.
func (s *QueueService) InterceptEdit(ctx context.Context, req EditRequest) (*InterceptResult, error) {
	if s.store.ReadOnly() {
		return nil, common.ErrReadOnly
	}
	if s.policy.CanBypass(req.Actor, domain.ChangeEdit, []int{req.Namespace}) {
		return &InterceptResult{Queued: false}, nil
	}

	row, res := s.newRow(domain.ChangeEdit, req.Actor, req.Namespace, req.Title, req.Watch, req.Tags)
	row.Text = req.Text
	row.Comment = req.Summary
	row.Minor = req.Minor
	row.Bot = req.Bot
	row.BaseRevID = req.BaseRevID
	row.NewLen = len(req.Text)
	if latest, err := s.store.GetLatestRevision(ctx, contentstore.Target{Namespace: req.Namespace, Title: req.Title}); err == nil && latest != nil {
		row.OldLen = len(latest.Text)
	}

	return s.enqueue(ctx, &consequence.QueueEdit{Repo: s.repo, Row: row}, row, res)
}

// InterceptUpload queues a file upload unless the policy lets it through.
func (s *QueueService) InterceptUpload(ctx context.Context, req UploadRequest) (*InterceptResult, error) {
	if s.store.ReadOnly() {
		return nil, common.ErrReadOnly
	}
	if s.policy.CanBypass(req.Actor, domain.ChangeUpload, []int{req.Namespace}) {
		return &InterceptResult{Queued: false}, nil
	}

	row, res := s.newRow(domain.ChangeUpload, req.Actor, req.Namespace, req.Title, req.Watch, req.Tags)
	row.StashKey = req.StashKey
	row.Comment = req.Comment
	row.PageText = req.PageText
	row.NewLen = len(req.PageText)

	return s.enqueue(ctx, &consequence.QueueUpload{Repo: s.repo, Row: row}, row, res)
}

// InterceptMove queues a page rename unless the policy lets it through.
func (s *QueueService) InterceptMove(ctx context.Context, req MoveRequest) (*InterceptResult, error) {
	if s.store.ReadOnly() {
		return nil, common.ErrReadOnly
	}
	if s.policy.CanBypass(req.Actor, domain.ChangeMove, []int{req.Namespace, req.DstNamespace}) {
		return &InterceptResult{Queued: false}, nil
	}

	row, res := s.newRow(domain.ChangeMove, req.Actor, req.Namespace, req.Title, req.Watch, req.Tags)
	row.DstNamespace = req.DstNamespace
	row.DstTitle = req.DstTitle
	row.Comment = req.Reason

	return s.enqueue(ctx, &consequence.QueueMove{Repo: s.repo, Row: row}, row, res)
}

// PromoteToRegistered rewrites an anonymous actor's pending rows onto
// their freshly registered account. Returns the rows rewritten.
func (s *QueueService) PromoteToRegistered(ctx context.Context, anonToken string, userID uint64, userName string) (int64, error) {
	return s.repo.PromotePreloadID(ctx, anonPreloadID(anonToken), registeredPreloadID(userName), userID, userName)
}

func (s *QueueService) newRow(t domain.ChangeType, actor Actor, ns int, title string, watch bool, tags []string) (*domain.PendingChange, *InterceptResult) {
	res := &InterceptResult{Queued: true}
	preloadID := ""
	if actor.Registered {
		preloadID = registeredPreloadID(actor.Name)
	} else {
		token := actor.AnonToken
		if token == "" {
			token = uuid.NewString()
			res.AnonToken = token
		}
		preloadID = anonPreloadID(token)
	}
	return &domain.PendingChange{
		Type:       t,
		Namespace:  ns,
		Title:      title,
		UserID:     actor.ID,
		UserName:   actor.Name,
		IP:         actor.IP,
		XFF:        actor.XFF,
		UserAgent:  actor.UserAgent,
		PreloadID:  preloadID,
		Tags:       domain.JoinTags(tags),
		WatchPage:  watch,
		ReceivedAt: s.now(),
	}, res
}

func (s *QueueService) enqueue(ctx context.Context, c consequence.Consequence, row *domain.PendingChange, res *InterceptResult) (*InterceptResult, error) {
	block, err := s.blocks.Find(ctx, row.UserName)
	if err != nil {
		return nil, err
	}
	if block != nil {
		row.Rejected = true
		row.RejectedAt = s.now()
		row.RejectedAuto = true
		row.RejectedBy = block.BlockedBy
		res.Spam = true
	}

	out, err := s.cm.Add(ctx, c)
	if err != nil {
		return nil, err
	}
	if id, ok := out.(uint64); ok {
		res.ID = id
	}

	if res.Spam {
		rejectedTotal.WithLabelValues("auto").Inc()
	} else {
		if _, err := s.cm.Add(ctx, &consequence.InvalidatePendingCache{Cache: s.notify}); err != nil {
			s.log.Warn().Err(err).Msg("pending cache invalidation failed")
		}
	}
	queuedTotal.WithLabelValues(string(row.Type), fmt.Sprintf("%t", res.Spam)).Inc()

	s.log.Info().
		Str("type", string(row.Type)).
		Str("user", row.UserName).
		Str("title", row.Title).
		Uint64("id", res.ID).
		Bool("spam", res.Spam).
		Msg("change queued")
	return res, nil
}

func registeredPreloadID(name string) string { return "[" + name }
func anonPreloadID(token string) string      { return "]" + token }
