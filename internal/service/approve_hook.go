package service

import (
	"sync"
	"time"

	"github.com/wikigate/moderation-backend/internal/contentstore"
	"github.com/wikigate/moderation-backend/internal/domain"
)

// TaskKey identifies the apply operation an ApproveTask corrects.
type TaskKey struct {
	Title    string
	UserName string
	Type     domain.ChangeType
}

// ApproveTask holds the original submission metadata to substitute into
// audit records while a reviewer's apply operation is in flight, so the
// result reads as if authored by the original submitter.
type ApproveTask struct {
	IP        string
	XFF       string
	UserAgent string
	Tags      []string
	Timestamp time.Time
}

// ApproveTaskRegistry is the per-process task registry: an explicit
// object injected into the content-store adapter as its audit-write
// interceptor, never a global. Tasks are scoped to a single apply
// operation and discarded once it ends.
type ApproveTaskRegistry struct {
	mu    sync.RWMutex
	tasks map[TaskKey]ApproveTask
}

// NewApproveTaskRegistry creates an empty registry.
func NewApproveTaskRegistry() *ApproveTaskRegistry {
	return &ApproveTaskRegistry{tasks: make(map[TaskKey]ApproveTask)}
}

// Install registers the task for one apply operation. A second approval
// for the same key replaces the previous task.
func (r *ApproveTaskRegistry) Install(key TaskKey, task ApproveTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[key] = task
}

// Discard drops the task when the apply operation ends.
func (r *ApproveTaskRegistry) Discard(key TaskKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, key)
}

// Lookup returns the task for key, if any.
func (r *ApproveTaskRegistry) Lookup(key TaskKey) (ApproveTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[key]
	return t, ok
}

// InProgress reports whether any approval is currently in flight. The
// bypass policy treats apply paths as already vetted while this is true,
// so nested applies triggered by an approval are not re-queued.
func (r *ApproveTaskRegistry) InProgress() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks) > 0
}

// BeforeAuditWrite substitutes the stored origin metadata into the audit
// record the content store is about to write, when a task matches.
// Implements contentstore.AuditWriteInterceptor.
func (r *ApproveTaskRegistry) BeforeAuditWrite(rec *contentstore.AuditRecord) {
	task, ok := r.Lookup(TaskKey{
		Title:    rec.Target.Title,
		UserName: rec.UserName,
		Type:     domain.ChangeType(rec.Kind),
	})
	if !ok {
		return
	}
	rec.IP = task.IP
	rec.XFF = task.XFF
	rec.UserAgent = task.UserAgent
	rec.Tags = append(rec.Tags, task.Tags...)
}

// LogRevisionDeferred backfills a log entry whose referenced revision
// was created by a deferred step after the apply call returned.
// Implements contentstore.DeferredLogHook.
func (r *ApproveTaskRegistry) LogRevisionDeferred(entry *contentstore.LogEntry, revID uint64) {
	task, ok := r.Lookup(TaskKey{
		Title:    entry.Target.Title,
		UserName: entry.Actor,
		Type:     domain.ChangeType(entry.Kind),
	})
	if !ok {
		return
	}
	entry.RevID = revID
	entry.Timestamp = task.Timestamp
}
