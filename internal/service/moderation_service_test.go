package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wikigate/moderation-backend/internal/common"
	"github.com/wikigate/moderation-backend/internal/contentstore"
	"github.com/wikigate/moderation-backend/internal/domain"
)

func TestApproveAttributesOriginalAuthor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	id := queueEditFor(t, e, author(), "Sandbox", "hello world", 0)

	outcome, err := e.mod.Approve(ctx, id, moderator())
	require.NoError(t, err)
	require.NotZero(t, outcome.RevID)
	assert.Equal(t, domain.ChangeEdit, outcome.Type)

	rev, err := e.store.GetRevision(ctx, outcome.RevID)
	require.NoError(t, err)
	assert.Equal(t, "alice", rev.UserName)
	assert.Equal(t, "hello world", rev.Text)

	// The audit row carries the author's origin, never the reviewer's.
	records := e.store.AuditRecords()
	require.Len(t, records, 1)
	assert.Equal(t, author().IP, records[0].IP)
	assert.Equal(t, author().XFF, records[0].XFF)
	assert.Equal(t, author().UserAgent, records[0].UserAgent)

	// The queue row is gone and the hook scope is closed.
	row, err := e.repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, row)
	assert.False(t, e.registry.InProgress())

	_, err = e.mod.Approve(ctx, id, moderator())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestApproveBackdatesToSubmissionTime(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	received := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	applied := time.Date(2026, 5, 3, 15, 0, 0, 0, time.UTC)
	e.queue.now = fixedClock(received)
	e.store.Now = fixedClock(applied)

	id := queueEditFor(t, e, author(), "Sandbox", "hello", 0)
	outcome, err := e.mod.Approve(ctx, id, moderator())
	require.NoError(t, err)

	rev, err := e.store.GetRevision(ctx, outcome.RevID)
	require.NoError(t, err)
	assert.True(t, rev.Timestamp.Equal(received), "revision reads as saved when submitted")
}

func TestApproveKeepsClockWhenBackdatingWouldReorder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	prevTime := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	received := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) // before prev
	applied := time.Date(2026, 5, 3, 15, 0, 0, 0, time.UTC)

	e.store.Now = fixedClock(prevTime)
	first, err := e.store.ApplyEdit(ctx, editParams("Sandbox", "v1", "someone"), nil)
	require.NoError(t, err)

	e.queue.now = fixedClock(received)
	id := queueEditFor(t, e, author(), "Sandbox", "v2", first.RevID)

	e.store.Now = fixedClock(applied)
	outcome, err := e.mod.Approve(ctx, id, moderator())
	require.NoError(t, err)

	rev, err := e.store.GetRevision(ctx, outcome.RevID)
	require.NoError(t, err)
	assert.True(t, rev.Timestamp.Equal(applied), "backdating must not put the revision before its predecessor")
}

func TestApproveMergesInterveningEdit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	base, err := e.store.ApplyEdit(ctx, editParams("Page", "one\ntwo\nthree\n", "someone"), nil)
	require.NoError(t, err)

	id := queueEditFor(t, e, author(), "Page", "ONE\ntwo\nthree\n", base.RevID)

	// Another editor lands a change before review.
	_, err = e.store.ApplyEdit(ctx, contentstore.EditParams{
		Target: contentstore.Target{Title: "Page"}, Text: "one\ntwo\nTHREE\n",
		UserName: "bob", BaseRevID: base.RevID,
	}, nil)
	require.NoError(t, err)

	outcome, err := e.mod.Approve(ctx, id, moderator())
	require.NoError(t, err)

	rev, err := e.store.GetRevision(ctx, outcome.RevID)
	require.NoError(t, err)
	assert.Equal(t, "ONE\ntwo\nTHREE\n", rev.Text, "both edits survive the merge")
	assert.Equal(t, "alice", rev.UserName)
}

func TestApproveConflictFlagsRow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	base, err := e.store.ApplyEdit(ctx, editParams("Page", "alpha\n", "someone"), nil)
	require.NoError(t, err)

	id := queueEditFor(t, e, author(), "Page",
		"totally new text from the author with no overlap at all\n", base.RevID)

	_, err = e.store.ApplyEdit(ctx, contentstore.EditParams{
		Target: contentstore.Target{Title: "Page"},
		Text:   "an entirely different replacement written meanwhile by bob\n",
		UserName: "bob", BaseRevID: base.RevID,
	}, nil)
	require.NoError(t, err)

	_, err = e.mod.Approve(ctx, id, moderator())
	assert.ErrorIs(t, err, common.ErrEditConflict)

	row, err := e.repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, row, "conflicted rows stay queued for manual merge")
	assert.True(t, row.Conflict)
	assert.Equal(t, "totally new text from the author with no overlap at all\n", row.Text)

	latest, err := e.store.GetLatestRevision(ctx, contentstore.Target{Title: "Page"})
	require.NoError(t, err)
	assert.Equal(t, "an entirely different replacement written meanwhile by bob\n", latest.Text,
		"a failed approval writes nothing")
}

func conflictedRow(t *testing.T, e *env) uint64 {
	t.Helper()
	ctx := context.Background()
	base, err := e.store.ApplyEdit(ctx, editParams("Page", "alpha\n", "someone"), nil)
	require.NoError(t, err)
	id := queueEditFor(t, e, author(), "Page",
		"totally new text from the author with no overlap at all\n", base.RevID)
	_, err = e.store.ApplyEdit(ctx, contentstore.EditParams{
		Target: contentstore.Target{Title: "Page"},
		Text:   "an entirely different replacement written meanwhile by bob\n",
		UserName: "bob", BaseRevID: base.RevID,
	}, nil)
	require.NoError(t, err)
	_, err = e.mod.Approve(ctx, id, moderator())
	require.ErrorIs(t, err, common.ErrEditConflict)
	return id
}

func TestMergeResolvesConflict(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := conflictedRow(t, e)

	_, err := e.mod.Merge(ctx, id, moderator(), "resolved\n")
	assert.ErrorIs(t, err, common.ErrMergeNotAllowed, "merging needs the skip capability")

	reviewer := moderator(CapSkipEdit)
	outcome, err := e.mod.Merge(ctx, id, reviewer, "resolved by hand  \n-- ~~~~")
	require.NoError(t, err)
	require.NotZero(t, outcome.RevID)

	// The merged revision is the reviewer's and is normalized again.
	rev, err := e.store.GetRevision(ctx, outcome.RevID)
	require.NoError(t, err)
	assert.Equal(t, "mod", rev.UserName)
	assert.Equal(t, "resolved by hand\n-- mod", rev.Text)

	row, err := e.repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, outcome.RevID, row.MergedRevID)
	assert.False(t, row.Conflict)
	assert.Equal(t, id, row.Preloadable)

	// The revision carries the merged tag, durably applied.
	var tagged bool
	for _, rec := range e.store.AuditRecords() {
		if rec.RevID == outcome.RevID {
			for _, tag := range rec.Tags {
				tagged = tagged || tag == MergedTag
			}
		}
	}
	assert.True(t, tagged)
	unapplied, err := e.tags.FindUnapplied(ctx)
	require.NoError(t, err)
	assert.Empty(t, unapplied)

	_, err = e.mod.Merge(ctx, id, reviewer, "again")
	assert.ErrorIs(t, err, common.ErrMergeNotNeeded)
}

func TestMergeRequiresConflict(t *testing.T) {
	e := newEnv(t)
	id := queueEditFor(t, e, author(), "Sandbox", "hello", 0)

	_, err := e.mod.Merge(context.Background(), id, moderator(CapSkipEdit), "text")
	assert.ErrorIs(t, err, common.ErrMergeNotNeeded)
}

func TestMergeLosesToRejection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := conflictedRow(t, e)

	require.NoError(t, e.mod.Reject(ctx, id, moderator()))

	_, err := e.mod.Merge(ctx, id, moderator(CapSkipEdit), "text")
	assert.ErrorIs(t, err, common.ErrAlreadyRejected)
}

func TestRejectNotifiesAuthorOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := queueEditFor(t, e, author(), "Sandbox", "hello", 0)

	require.NoError(t, e.mod.Reject(ctx, id, moderator()))

	sent := e.sink.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice", sent[0].UserName)
	assert.Equal(t, "moderation-rejected", sent[0].Code)
	assert.Equal(t, "Sandbox", sent[0].Params["title"])

	err := e.mod.Reject(ctx, id, moderator())
	assert.ErrorIs(t, err, common.ErrAlreadyRejected)
	assert.Len(t, e.sink.Sent(), 1, "the racing loser does not re-notify")
}

func TestApproveRejectedWithinGrace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := queueEditFor(t, e, author(), "Sandbox", "hello", 0)

	require.NoError(t, e.mod.Reject(ctx, id, moderator()))

	// A change of heart shortly after still goes through.
	outcome, err := e.mod.Approve(ctx, id, moderator())
	require.NoError(t, err)
	assert.NotZero(t, outcome.RevID)
}

func TestApproveRejectedAfterGrace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := queueEditFor(t, e, author(), "Sandbox", "hello", 0)

	require.NoError(t, e.mod.Reject(ctx, id, moderator()))

	e.mod.now = fixedClock(time.Now().Add(15 * 24 * time.Hour))
	_, err := e.mod.Approve(ctx, id, moderator())
	assert.ErrorIs(t, err, common.ErrRejectedLongAgo)
}

func TestGraceRunsFromRejectionNotLastTouch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := queueEditFor(t, e, author(), "Sandbox", "hello", 0)

	require.NoError(t, e.mod.Reject(ctx, id, moderator()))

	// Age the rejection past the grace window, then touch the row so
	// updated_at moves. The window is anchored to the rejection itself.
	old := time.Now().Add(-15 * 24 * time.Hour)
	require.NoError(t, e.db.Model(&domain.PendingChange{}).
		Where("id = ?", id).
		UpdateColumn("rejected_at", old).Error)
	_, err := e.repo.SetConflict(ctx, id, true)
	require.NoError(t, err)
	_, err = e.repo.SetConflict(ctx, id, false)
	require.NoError(t, err)

	_, err = e.mod.Approve(ctx, id, moderator())
	assert.ErrorIs(t, err, common.ErrRejectedLongAgo)
}

func TestApproveAllSkipsConflictedRows(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	okID := queueEditFor(t, e, author(), "Good page", "fine", 0)
	badID := conflictedRow(t, e)

	out, err := e.mod.ApproveAll(ctx, "alice", moderator())
	require.NoError(t, err)
	assert.Equal(t, []uint64{okID}, out.Approved)
	assert.Equal(t, common.ErrEditConflict.Code, out.Failed[badID])

	row, err := e.repo.FindByID(ctx, badID)
	require.NoError(t, err)
	assert.NotNil(t, row, "the conflicted row survives the batch")

	_, err = e.mod.ApproveAll(ctx, "nobody", moderator())
	assert.ErrorIs(t, err, common.ErrNothingToApproveAll)
}

func TestRejectAll(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	queueEditFor(t, e, author(), "One", "a", 0)
	queueEditFor(t, e, author(), "Two", "b", 0)

	count, err := e.mod.RejectAll(ctx, "alice", moderator())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	rows, _, err := e.mod.List(ctx, repositoryFilter("rejected"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.True(t, r.RejectedBatch)
		assert.Equal(t, "mod", r.RejectedBy)
	}

	_, err = e.mod.RejectAll(ctx, "alice", moderator())
	assert.ErrorIs(t, err, common.ErrNothingToRejectAll)
}

func TestApproveMove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.store.ApplyEdit(ctx, editParams("Old name", "body", "someone"), nil)
	require.NoError(t, err)

	res, err := e.queue.InterceptMove(ctx, MoveRequest{
		Actor: author(), Title: "Old name", DstTitle: "New name", Reason: "typo",
	})
	require.NoError(t, err)

	_, err = e.mod.Approve(ctx, res.ID, moderator())
	assert.ErrorIs(t, err, common.ErrMoveNotAllowed, "the reviewer must hold the move capability")

	_, err = e.mod.Approve(ctx, res.ID, moderator(CapSkipMove))
	require.NoError(t, err)

	moved, err := e.store.GetLatestRevision(ctx, contentstore.Target{Title: "New name"})
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, "body", moved.Text)
}

func TestApproveMoveOccupiedDestination(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.store.ApplyEdit(ctx, editParams("Old name", "body", "someone"), nil)
	require.NoError(t, err)
	_, err = e.store.ApplyEdit(ctx, editParams("New name", "occupied", "someone"), nil)
	require.NoError(t, err)

	res, err := e.queue.InterceptMove(ctx, MoveRequest{
		Actor: author(), Title: "Old name", DstTitle: "New name",
	})
	require.NoError(t, err)

	_, err = e.mod.Approve(ctx, res.ID, moderator(CapSkipMove))
	assert.ErrorIs(t, err, common.ErrMoveTargetExists)
}

func TestApproveUpload(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.StashFile("stash-1", "binary")

	res, err := e.queue.InterceptUpload(ctx, UploadRequest{
		Actor: author(), Namespace: 6, Title: "Photo.jpg",
		StashKey: "stash-1", PageText: "A photo.",
	})
	require.NoError(t, err)

	outcome, err := e.mod.Approve(ctx, res.ID, moderator())
	require.NoError(t, err)
	assert.Zero(t, outcome.RevID, "the description revision is created by a deferred step")

	row, err := e.repo.FindByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Nil(t, row)

	// Approve drains the deferred description-page step itself, so the
	// revision and the backfilled log entry exist as soon as it returns.
	latest, err := e.store.GetLatestRevision(ctx, contentstore.Target{Namespace: 6, Title: "Photo.jpg"})
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "A photo.", latest.Text)

	for _, entry := range e.store.LogEntries() {
		if entry.Kind == "upload" {
			assert.Equal(t, latest.ID, entry.RevID)
		}
	}
}

func TestApproveUploadBackdatesLogEntry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.StashFile("stash-1", "binary")

	received := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	applied := time.Date(2026, 5, 3, 9, 0, 0, 0, time.UTC)
	e.queue.now = fixedClock(received)
	e.store.Now = fixedClock(applied)

	res, err := e.queue.InterceptUpload(ctx, UploadRequest{
		Actor: author(), Namespace: 6, Title: "Photo.jpg",
		StashKey: "stash-1", PageText: "A photo.",
	})
	require.NoError(t, err)

	_, err = e.mod.Approve(ctx, res.ID, moderator())
	require.NoError(t, err)

	// The upload log entry is backfilled while the approval metadata is
	// still installed, so it carries the submission time, not apply time.
	var found bool
	for _, entry := range e.store.LogEntries() {
		if entry.Kind == "upload" {
			found = true
			assert.NotZero(t, entry.RevID)
			assert.True(t, entry.Timestamp.Equal(received),
				"log entry stamped %s, want submission time %s", entry.Timestamp, received)
		}
	}
	require.True(t, found, "upload log entry missing")
}

func TestApproveUploadMissingStash(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.store.StashFile("stash-1", "binary")

	res, err := e.queue.InterceptUpload(ctx, UploadRequest{
		Actor: author(), Namespace: 6, Title: "Photo.jpg",
		StashKey: "stash-1", PageText: "A photo.",
	})
	require.NoError(t, err)

	e.store.PurgeStash("stash-1")

	_, err = e.mod.Approve(ctx, res.ID, moderator())
	assert.ErrorIs(t, err, common.ErrMissingStashedImage)

	row, err := e.repo.FindByID(ctx, res.ID)
	require.NoError(t, err)
	assert.NotNil(t, row, "a failed upload stays queued")
}

func TestReadOnlyModeBlocksReviewActions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := queueEditFor(t, e, author(), "Sandbox", "hello", 0)

	e.store.SetReadOnly(true)

	_, err := e.mod.Approve(ctx, id, moderator())
	assert.ErrorIs(t, err, common.ErrReadOnly)
	assert.ErrorIs(t, e.mod.Reject(ctx, id, moderator()), common.ErrReadOnly)
	_, err = e.mod.Merge(ctx, id, moderator(CapSkipEdit), "x")
	assert.ErrorIs(t, err, common.ErrReadOnly)
	_, err = e.mod.ApproveAll(ctx, "alice", moderator())
	assert.ErrorIs(t, err, common.ErrReadOnly)
	_, err = e.mod.RejectAll(ctx, "alice", moderator())
	assert.ErrorIs(t, err, common.ErrReadOnly)

	// Reading the queue still works.
	detail, err := e.mod.GetPending(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", detail.Row.Text)
}

func TestGetPendingIncludesCurrentText(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cur, err := e.store.ApplyEdit(ctx, editParams("Sandbox", "current text", "someone"), nil)
	require.NoError(t, err)
	id := queueEditFor(t, e, author(), "Sandbox", "queued text", cur.RevID)

	detail, err := e.mod.GetPending(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "current text", detail.CurrentText)
	assert.Equal(t, cur.RevID, detail.CurrentRev)

	_, err = e.mod.GetPending(ctx, 9999)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBlockLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.mod.Block(ctx, "spammer", moderator()))
	assert.ErrorIs(t, e.mod.Block(ctx, "spammer", moderator()), common.ErrAlreadyBlocked)

	blocks, total, err := e.mod.ListBlocks(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "spammer", blocks[0].UserName)

	require.NoError(t, e.mod.Unblock(ctx, "spammer", moderator()))
	assert.ErrorIs(t, e.mod.Unblock(ctx, "spammer", moderator()), common.ErrBlockNotFound)
}
