// Package contentstore defines the capabilities this engine consumes
// from the underlying document store. The store itself (page storage,
// file storage, diff primitives) is an external collaborator; only its
// interface lives here. memstore provides an in-process implementation.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors surfaced by ContentStore implementations.
var (
	ErrReadOnly            = errors.New("content store is in read-only mode")
	ErrEditConflict        = errors.New("base revision is no longer current")
	ErrMissingStashedImage = errors.New("staged upload no longer exists")
	ErrPageExists          = errors.New("destination page already exists")
	ErrRevisionNotFound    = errors.New("revision not found")
	ErrBadContent          = errors.New("content failed validation")
)

// Target identifies a page by namespace and title.
type Target struct {
	Namespace int    `json:"namespace"`
	Title     string `json:"title"`
}

func (t Target) String() string {
	return fmt.Sprintf("%d:%s", t.Namespace, t.Title)
}

// Revision is one stored version of a page.
type Revision struct {
	ID        uint64
	Target    Target
	Text      string
	Summary   string
	UserName  string
	Minor     bool
	Timestamp time.Time
}

// AuditRecord is the audit row the store is about to write for an apply
// operation. Interceptors may rewrite origin fields before it lands.
type AuditRecord struct {
	Kind      string // "edit", "upload" or "move"
	Target    Target
	UserName  string
	IP        string
	XFF       string
	UserAgent string
	Tags      []string
	RevID     uint64
	Timestamp time.Time
}

// AuditWriteInterceptor is consulted synchronously before each audit
// record is written during an apply call. Injected per operation, never
// registered globally.
type AuditWriteInterceptor interface {
	BeforeAuditWrite(rec *AuditRecord)
}

// DeferredLogHook is an optional narrower hook on an interceptor,
// consulted when a deferred step completes and a log entry written
// earlier needs its revision reference patched in.
type DeferredLogHook interface {
	LogRevisionDeferred(entry *LogEntry, revID uint64)
}

// LogEntry is a per-action log row kept by the store.
type LogEntry struct {
	Kind      string
	Target    Target
	Actor     string
	RevID     uint64
	Params    map[string]string
	Timestamp time.Time
}

// EditParams describes one edit to apply.
type EditParams struct {
	Target    Target
	Text      string
	Summary   string
	Minor     bool
	Bot       bool
	BaseRevID uint64
	UserName  string
}

// UploadParams materializes a staged file onto the real file store.
type UploadParams struct {
	Target   Target
	StashKey string
	Comment  string
	PageText string
	UserName string
}

// MoveParams renames a page, leaving a redirect behind.
type MoveParams struct {
	From     Target
	To       Target
	Reason   string
	UserName string
}

// Result reports a successful apply. RevID is zero when the operation
// did not synchronously create a page revision (uploads, moves).
type Result struct {
	RevID     uint64
	Timestamp time.Time
}

// ContentStore is the abstract apply/read surface of the document store.
type ContentStore interface {
	ReadOnly() bool

	GetRevision(ctx context.Context, id uint64) (*Revision, error)
	// GetLatestRevision returns (nil, nil) when the page does not exist.
	GetLatestRevision(ctx context.Context, t Target) (*Revision, error)
	PreSaveNormalize(ctx context.Context, text, userName string) string
	ThreeWayMerge(ctx context.Context, base, mine, theirs string) (string, bool)

	ApplyEdit(ctx context.Context, p EditParams, ic AuditWriteInterceptor) (*Result, error)
	ApplyUpload(ctx context.Context, p UploadParams, ic AuditWriteInterceptor) (*Result, error)
	ApplyMove(ctx context.Context, p MoveParams, ic AuditWriteInterceptor) (*Result, error)

	// RunDeferred drains the deferred steps queued by apply calls
	// (upload description pages). Callers holding an interceptor scope
	// must drain before ending the scope, or DeferredLogHook callbacks
	// fire after their task is gone.
	RunDeferred(ctx context.Context)

	SetRevisionTimestamp(ctx context.Context, revID uint64, ts time.Time) error
	AddTags(ctx context.Context, revID uint64, tags []string) error
	WriteLog(ctx context.Context, e LogEntry) error
	Watch(ctx context.Context, userName string, t Target) error
}
