package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/wikigate/moderation-backend/internal/common"
	"github.com/wikigate/moderation-backend/internal/consequence"
	"github.com/wikigate/moderation-backend/internal/contentstore"
	"github.com/wikigate/moderation-backend/internal/domain"
	"github.com/wikigate/moderation-backend/internal/repository"
)

// MergedTag is attached to revisions produced by manual merge.
const MergedTag = "moderation-merged"

// DefaultRejectedGrace is how long after rejection a change may still be
// approved (un-rejected).
const DefaultRejectedGrace = 14 * 24 * time.Hour

// ApproveOutcome reports one successfully applied change.
type ApproveOutcome struct {
	ID    uint64            `json:"id"`
	Type  domain.ChangeType `json:"type"`
	RevID uint64            `json:"rev_id,omitempty"`
}

// BatchOutcome reports per-row results of ApproveAll.
type BatchOutcome struct {
	Approved []uint64          `json:"approved"`
	Failed   map[uint64]string `json:"failed,omitempty"`
}

// PendingDetail is the read-only view of one queue row, with the current
// page text so the caller can render a diff. Available in read-only mode.
type PendingDetail struct {
	Row         *domain.PendingChange `json:"row"`
	CurrentText string                `json:"current_text"`
	CurrentRev  uint64                `json:"current_rev"`
}

// ModerationService runs the approve/reject/merge workflow.
type ModerationService struct {
	repo     repository.QueueRepository
	blocks   repository.BlockRepository
	tags     repository.TagRepository
	store    contentstore.ContentStore
	registry *ApproveTaskRegistry
	notify   *NotifyService
	sink     consequence.NotificationSink
	cm       consequence.Manager
	log      zerolog.Logger

	rejectedGrace time.Duration
	now           func() time.Time
}

// NewModerationService creates a new ModerationService
func NewModerationService(
	repo repository.QueueRepository,
	blocks repository.BlockRepository,
	tags repository.TagRepository,
	store contentstore.ContentStore,
	registry *ApproveTaskRegistry,
	notify *NotifyService,
	sink consequence.NotificationSink,
	cm consequence.Manager,
	log zerolog.Logger,
) *ModerationService {
	return &ModerationService{
		repo:          repo,
		blocks:        blocks,
		tags:          tags,
		store:         store,
		registry:      registry,
		notify:        notify,
		sink:          sink,
		cm:            cm,
		log:           log,
		rejectedGrace: DefaultRejectedGrace,
		now:           time.Now,
	}
}

// SetRejectedGrace overrides the rejection grace window.
func (s *ModerationService) SetRejectedGrace(d time.Duration) {
	s.rejectedGrace = d
}

// GetPending returns one queue row with the current page text for diff
// rendering. Works in read-only mode.
func (s *ModerationService) GetPending(ctx context.Context, id uint64) (*PendingDetail, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, common.ErrNotFound
	}
	detail := &PendingDetail{Row: row}
	latest, err := s.store.GetLatestRevision(ctx, contentstore.Target{Namespace: row.Namespace, Title: row.Title})
	if err == nil && latest != nil {
		detail.CurrentText = latest.Text
		detail.CurrentRev = latest.ID
	}
	return detail, nil
}

// List returns queue rows for the review UI.
func (s *ModerationService) List(ctx context.Context, f repository.ListFilter) ([]*domain.PendingChange, int64, error) {
	return s.repo.List(ctx, f)
}

// Approve applies one pending change through the content store's normal
// apply path, with the approve-hook task installed so the resulting
// records read as authored by the original submitter.
func (s *ModerationService) Approve(ctx context.Context, id uint64, reviewer Actor) (*ApproveOutcome, error) {
	if s.store.ReadOnly() {
		return nil, common.ErrReadOnly
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, common.ErrNotFound
	}
	outcome, err := s.approveRow(ctx, row, reviewer)
	if err != nil {
		return nil, err
	}
	s.writeReviewLog(ctx, "approve", row, reviewer, outcome.RevID)
	return outcome, nil
}

// ApproveAll approves every non-conflicted pending row by one author,
// oldest first. Conflicted rows are left untouched and reported as
// failures. A failed row does not abort the remaining rows.
func (s *ModerationService) ApproveAll(ctx context.Context, userName string, reviewer Actor) (*BatchOutcome, error) {
	if s.store.ReadOnly() {
		return nil, common.ErrReadOnly
	}
	rows, err := s.repo.ListPendingByUser(ctx, userName)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, common.ErrNothingToApproveAll
	}

	out := &BatchOutcome{Failed: map[uint64]string{}}
	for _, row := range rows {
		if row.Conflict {
			out.Failed[row.ID] = common.ErrEditConflict.Code
			continue
		}
		o, err := s.approveRow(ctx, row, reviewer)
		if err != nil {
			out.Failed[row.ID] = errCode(err)
			continue
		}
		out.Approved = append(out.Approved, o.ID)
		s.writeReviewLog(ctx, "approve", row, reviewer, o.RevID)
	}
	if len(out.Approved) > 0 {
		s.store.WriteLog(ctx, contentstore.LogEntry{
			Kind:   "approveall",
			Actor:  reviewer.Name,
			Params: map[string]string{"user": userName},
		})
	}
	return out, nil
}

func (s *ModerationService) approveRow(ctx context.Context, row *domain.PendingChange, reviewer Actor) (*ApproveOutcome, error) {
	if row.MergedRevID != 0 {
		return nil, common.ErrAlreadyMerged
	}
	if row.Rejected && s.now().Sub(row.RejectedAt) > s.rejectedGrace {
		return nil, common.ErrRejectedLongAgo
	}

	key := TaskKey{Title: row.Title, UserName: row.UserName, Type: row.Type}
	s.registry.Install(key, ApproveTask{
		IP:        row.IP,
		XFF:       row.XFF,
		UserAgent: row.UserAgent,
		Tags:      row.TagList(),
		Timestamp: row.ReceivedAt,
	})
	defer s.registry.Discard(key)

	var (
		res  *contentstore.Result
		prev *contentstore.Revision
		err  error
	)
	switch row.Type {
	case domain.ChangeEdit:
		res, prev, err = s.applyEdit(ctx, row)
	case domain.ChangeUpload:
		res, err = s.applyUpload(ctx, row)
	case domain.ChangeMove:
		res, err = s.applyMove(ctx, row, reviewer)
	default:
		return nil, common.ErrInvalidInput
	}
	if err != nil {
		return nil, err
	}

	// Drain deferred store work (upload description pages) while the
	// task is still installed, so the log backfill hook can match it.
	s.store.RunDeferred(ctx)

	s.fixupTimestamp(ctx, row, res, prev)

	if row.WatchPage {
		target := contentstore.Target{Namespace: row.Namespace, Title: row.Title}
		if _, err := s.cm.Add(ctx, &consequence.WatchPage{Store: s.store, UserName: row.UserName, Target: target}); err != nil {
			s.log.Warn().Err(err).Uint64("id", row.ID).Msg("watch page failed")
		}
	}
	if _, err := s.cm.Add(ctx, &consequence.DeletePending{Repo: s.repo, ID: row.ID}); err != nil {
		return nil, err
	}
	if _, err := s.cm.Add(ctx, &consequence.InvalidatePendingCache{Cache: s.notify}); err != nil {
		s.log.Warn().Err(err).Msg("pending cache invalidation failed")
	}

	approvedTotal.WithLabelValues(string(row.Type)).Inc()
	s.log.Info().
		Uint64("id", row.ID).
		Str("type", string(row.Type)).
		Str("user", row.UserName).
		Str("reviewer", reviewer.Name).
		Uint64("rev", res.RevID).
		Msg("change approved")
	return &ApproveOutcome{ID: row.ID, Type: row.Type, RevID: res.RevID}, nil
}

func (s *ModerationService) applyEdit(ctx context.Context, row *domain.PendingChange) (*contentstore.Result, *contentstore.Revision, error) {
	target := contentstore.Target{Namespace: row.Namespace, Title: row.Title}
	latest, err := s.store.GetLatestRevision(ctx, target)
	if err != nil {
		return nil, nil, common.Upstream(err)
	}

	params := contentstore.EditParams{
		Target:    target,
		Text:      row.Text,
		Summary:   row.Comment,
		Minor:     row.Minor,
		Bot:       row.Bot,
		BaseRevID: row.BaseRevID,
		UserName:  row.UserName,
	}

	if latest != nil && latest.ID != row.BaseRevID {
		// The page changed between queueing and approval; try a
		// three-way merge of base, the queued text and the current text.
		base := ""
		if row.BaseRevID != 0 {
			if baseRev, err := s.store.GetRevision(ctx, row.BaseRevID); err == nil {
				base = baseRev.Text
			}
		}
		merged, ok := s.store.ThreeWayMerge(ctx, base, row.Text, latest.Text)
		if !ok {
			if _, err := s.repo.SetConflict(ctx, row.ID, true); err != nil {
				return nil, nil, err
			}
			conflictsTotal.Inc()
			return nil, nil, common.ErrEditConflict
		}
		params.Text = merged
		params.BaseRevID = latest.ID
	}

	res, err := s.store.ApplyEdit(ctx, params, s.registry)
	if err != nil {
		if errors.Is(err, contentstore.ErrEditConflict) {
			if _, cerr := s.repo.SetConflict(ctx, row.ID, true); cerr != nil {
				return nil, nil, cerr
			}
			conflictsTotal.Inc()
			return nil, nil, common.ErrEditConflict
		}
		return nil, nil, common.Upstream(err)
	}
	return res, latest, nil
}

func (s *ModerationService) applyUpload(ctx context.Context, row *domain.PendingChange) (*contentstore.Result, error) {
	res, err := s.store.ApplyUpload(ctx, contentstore.UploadParams{
		Target:   contentstore.Target{Namespace: row.Namespace, Title: row.Title},
		StashKey: row.StashKey,
		Comment:  row.Comment,
		PageText: row.PageText,
		UserName: row.UserName,
	}, s.registry)
	if err != nil {
		if errors.Is(err, contentstore.ErrMissingStashedImage) {
			return nil, common.ErrMissingStashedImage
		}
		return nil, common.Upstream(err)
	}
	return res, nil
}

func (s *ModerationService) applyMove(ctx context.Context, row *domain.PendingChange, reviewer Actor) (*contentstore.Result, error) {
	dst := contentstore.Target{Namespace: row.DstNamespace, Title: row.DstTitle}
	if existing, err := s.store.GetLatestRevision(ctx, dst); err != nil {
		return nil, common.Upstream(err)
	} else if existing != nil {
		return nil, common.ErrMoveTargetExists
	}
	// The reviewer, not just the original author, must be authorized to
	// perform moves.
	if !reviewer.Has(CapSkipMove) {
		return nil, common.ErrMoveNotAllowed
	}
	res, err := s.store.ApplyMove(ctx, contentstore.MoveParams{
		From:     contentstore.Target{Namespace: row.Namespace, Title: row.Title},
		To:       dst,
		Reason:   row.Comment,
		UserName: row.UserName,
	}, s.registry)
	if err != nil {
		return nil, common.Upstream(err)
	}
	return res, nil
}

// fixupTimestamp rewrites the applied revision's timestamp to the
// original submission time, unless that would reorder history: the
// submission must be newer than the previous revision and older than
// the timestamp the store assigned. Skips are logged, not applied.
func (s *ModerationService) fixupTimestamp(ctx context.Context, row *domain.PendingChange, res *contentstore.Result, prev *contentstore.Revision) {
	if res.RevID == 0 {
		return
	}
	if prev != nil && !row.ReceivedAt.After(prev.Timestamp) {
		s.log.Info().
			Uint64("id", row.ID).
			Time("received", row.ReceivedAt).
			Time("prev", prev.Timestamp).
			Msg("timestamp fixup skipped: would reorder history")
		return
	}
	if !row.ReceivedAt.Before(res.Timestamp) {
		return
	}
	if err := s.store.SetRevisionTimestamp(ctx, res.RevID, row.ReceivedAt); err != nil {
		s.log.Warn().Err(err).Uint64("rev", res.RevID).Msg("timestamp fixup failed")
	}
}

// Reject marks one row rejected. The conditional update resolves races:
// the loser gets "already handled".
func (s *ModerationService) Reject(ctx context.Context, id uint64, reviewer Actor) error {
	if s.store.ReadOnly() {
		return common.ErrReadOnly
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return common.ErrNotFound
	}
	if row.MergedRevID != 0 {
		return common.ErrAlreadyMerged
	}

	out, err := s.cm.Add(ctx, &consequence.MarkRejected{
		Repo: s.repo, ID: id, Reviewer: reviewer.Name,
	})
	if err != nil {
		return err
	}
	if changed, _ := out.(bool); !changed {
		return common.ErrAlreadyRejected
	}

	if _, err := s.cm.Add(ctx, &consequence.SendNotification{
		Sink:     s.sink,
		UserName: row.UserName,
		Code:     "moderation-rejected",
		Params:   map[string]string{"title": row.Title},
	}); err != nil {
		s.log.Warn().Err(err).Uint64("id", id).Msg("reject notification failed")
	}
	if _, err := s.cm.Add(ctx, &consequence.InvalidatePendingCache{Cache: s.notify}); err != nil {
		s.log.Warn().Err(err).Msg("pending cache invalidation failed")
	}
	s.writeReviewLog(ctx, "reject", row, reviewer, 0)
	rejectedTotal.WithLabelValues("single").Inc()
	return nil
}

// RejectAll rejects every non-terminal row by one author and returns the
// count actually changed.
func (s *ModerationService) RejectAll(ctx context.Context, userName string, reviewer Actor) (int64, error) {
	if s.store.ReadOnly() {
		return 0, common.ErrReadOnly
	}
	out, err := s.cm.Add(ctx, &consequence.MarkRejectedBatch{
		Repo: s.repo, UserName: userName, Reviewer: reviewer.Name,
	})
	if err != nil {
		return 0, err
	}
	count, _ := out.(int64)
	if count == 0 {
		return 0, common.ErrNothingToRejectAll
	}
	if _, err := s.cm.Add(ctx, &consequence.InvalidatePendingCache{Cache: s.notify}); err != nil {
		s.log.Warn().Err(err).Msg("pending cache invalidation failed")
	}
	s.store.WriteLog(ctx, contentstore.LogEntry{
		Kind:   "rejectall",
		Actor:  reviewer.Name,
		Params: map[string]string{"user": userName},
	})
	rejectedTotal.WithLabelValues("batch").Add(float64(count))
	return count, nil
}

// Merge resolves a conflicted row with reviewer-supplied text. The
// merged edit is genuinely the reviewer's: a human resolved what the
// algorithm could not, so it is attributed to them, normalized again,
// and the resulting revision is tagged.
func (s *ModerationService) Merge(ctx context.Context, id uint64, reviewer Actor, mergedText string) (*ApproveOutcome, error) {
	if s.store.ReadOnly() {
		return nil, common.ErrReadOnly
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, common.ErrNotFound
	}
	if !row.Conflict {
		return nil, common.ErrMergeNotNeeded
	}
	if row.MergedRevID != 0 {
		return nil, common.ErrAlreadyMerged
	}
	if row.Rejected {
		return nil, common.ErrAlreadyRejected
	}
	// Merging lets a human resolve the conflict, so the bar is at least
	// as high as bypassing moderation outright.
	if !reviewer.Has(CapSkipEdit) {
		return nil, common.ErrMergeNotAllowed
	}

	target := contentstore.Target{Namespace: row.Namespace, Title: row.Title}
	text := s.store.PreSaveNormalize(ctx, mergedText, reviewer.Name)
	params := contentstore.EditParams{
		Target:   target,
		Text:     text,
		Summary:  row.Comment,
		UserName: reviewer.Name,
	}
	if latest, err := s.store.GetLatestRevision(ctx, target); err == nil && latest != nil {
		params.BaseRevID = latest.ID
	}
	res, err := s.store.ApplyEdit(ctx, params, nil)
	if err != nil {
		return nil, common.Upstream(err)
	}

	out, err := s.cm.Add(ctx, &consequence.MarkMerged{Repo: s.repo, ID: id, RevID: res.RevID})
	if err != nil {
		return nil, err
	}
	if changed, _ := out.(bool); !changed {
		return nil, common.ErrAlreadyMerged
	}

	if _, err := s.cm.Add(ctx, &consequence.TagRevision{
		Tags: s.tags, Store: s.store, RevID: res.RevID, Names: []string{MergedTag},
	}); err != nil {
		s.log.Warn().Err(err).Uint64("rev", res.RevID).Msg("merge tagging failed")
	}
	if _, err := s.cm.Add(ctx, &consequence.InvalidatePendingCache{Cache: s.notify}); err != nil {
		s.log.Warn().Err(err).Msg("pending cache invalidation failed")
	}
	s.writeReviewLog(ctx, "merge", row, reviewer, res.RevID)
	mergedTotal.Inc()
	return &ApproveOutcome{ID: id, Type: row.Type, RevID: res.RevID}, nil
}

// Block adds a user to the denylist. Further submissions by them are
// auto-rejected as spam until unblocked.
func (s *ModerationService) Block(ctx context.Context, userName string, reviewer Actor) error {
	out, err := s.cm.Add(ctx, &consequence.BlockUser{
		Repo: s.blocks, UserName: userName, BlockedBy: reviewer.Name,
	})
	if err != nil {
		return err
	}
	if changed, _ := out.(bool); !changed {
		return common.ErrAlreadyBlocked
	}
	s.store.WriteLog(ctx, contentstore.LogEntry{
		Kind:   "block",
		Actor:  reviewer.Name,
		Params: map[string]string{"user": userName},
	})
	return nil
}

// Unblock removes a user from the denylist.
func (s *ModerationService) Unblock(ctx context.Context, userName string, reviewer Actor) error {
	out, err := s.cm.Add(ctx, &consequence.UnblockUser{Repo: s.blocks, UserName: userName})
	if err != nil {
		return err
	}
	if changed, _ := out.(bool); !changed {
		return common.ErrBlockNotFound
	}
	s.store.WriteLog(ctx, contentstore.LogEntry{
		Kind:   "unblock",
		Actor:  reviewer.Name,
		Params: map[string]string{"user": userName},
	})
	return nil
}

// ListBlocks returns the denylist.
func (s *ModerationService) ListBlocks(ctx context.Context, page, limit int) ([]*domain.ModerationBlock, int64, error) {
	return s.blocks.List(ctx, page, limit)
}

func (s *ModerationService) writeReviewLog(ctx context.Context, kind string, row *domain.PendingChange, reviewer Actor, revID uint64) {
	if err := s.store.WriteLog(ctx, contentstore.LogEntry{
		Kind:   kind,
		Target: contentstore.Target{Namespace: row.Namespace, Title: row.Title},
		Actor:  reviewer.Name,
		RevID:  revID,
		Params: map[string]string{"user": row.UserName},
	}); err != nil {
		s.log.Warn().Err(err).Str("kind", kind).Uint64("id", row.ID).Msg("review log write failed")
	}
}

func errCode(err error) string {
	if e, ok := common.AsError(err); ok {
		return e.Code
	}
	return err.Error()
}
