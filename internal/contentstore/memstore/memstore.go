// Package memstore is an in-process ContentStore used by tests and the
// local run mode. Pages, revisions, staged uploads, audit rows and log
// entries live in memory behind one mutex.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wikigate/moderation-backend/internal/contentstore"
)

type page struct {
	target    contentstore.Target
	revisions []*contentstore.Revision // oldest first
}

// Store implements contentstore.ContentStore.
type Store struct {
	mu       sync.Mutex
	pages    map[string]*page
	stash    map[string]string // stash key -> file contents
	audit    []contentstore.AuditRecord
	logs     []*contentstore.LogEntry
	watch    map[string][]contentstore.Target
	deferred []func(ctx context.Context)
	nextRev  uint64
	readOnly bool

	// Now is the clock; tests override it to control revision timestamps.
	Now func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		pages: make(map[string]*page),
		stash: make(map[string]string),
		watch: make(map[string][]contentstore.Target),
		Now:   time.Now,
	}
}

// SetReadOnly toggles read-only mode.
func (s *Store) SetReadOnly(ro bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = ro
}

// ReadOnly reports whether mutating operations are refused.
func (s *Store) ReadOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOnly
}

// StashFile stages file contents under key, as the upload front door
// would before queueing.
func (s *Store) StashFile(key, contents string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stash[key] = contents
}

// PurgeStash drops a staged file, simulating stash expiry.
func (s *Store) PurgeStash(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stash, key)
}

func (s *Store) GetRevision(ctx context.Context, id uint64) (*contentstore.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pages {
		for _, r := range p.revisions {
			if r.ID == id {
				cp := *r
				return &cp, nil
			}
		}
	}
	return nil, contentstore.ErrRevisionNotFound
}

func (s *Store) GetLatestRevision(ctx context.Context, t contentstore.Target) (*contentstore.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pages[t.String()]
	if p == nil || len(p.revisions) == 0 {
		return nil, nil
	}
	cp := *p.revisions[len(p.revisions)-1]
	return &cp, nil
}

// PreSaveNormalize strips trailing whitespace per line and substitutes
// the signature shorthand, the way the real store normalizes before save.
func (s *Store) PreSaveNormalize(ctx context.Context, text, userName string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	out := strings.Join(lines, "\n")
	return strings.ReplaceAll(out, "~~~~", userName)
}

func (s *Store) ApplyEdit(ctx context.Context, p contentstore.EditParams, ic contentstore.AuditWriteInterceptor) (*contentstore.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return nil, contentstore.ErrReadOnly
	}
	if strings.Contains(p.Text, "\x00") {
		return nil, contentstore.ErrBadContent
	}
	pg := s.pages[p.Target.String()]
	if pg != nil && len(pg.revisions) > 0 && p.BaseRevID != 0 {
		if latest := pg.revisions[len(pg.revisions)-1]; latest.ID != p.BaseRevID {
			return nil, contentstore.ErrEditConflict
		}
	}
	rev := s.addRevisionLocked(p.Target, p.Text, p.Summary, p.UserName, p.Minor)
	s.writeAuditLocked("edit", p.Target, p.UserName, rev, ic)
	return &contentstore.Result{RevID: rev.ID, Timestamp: rev.Timestamp}, nil
}

func (s *Store) ApplyUpload(ctx context.Context, p contentstore.UploadParams, ic contentstore.AuditWriteInterceptor) (*contentstore.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return nil, contentstore.ErrReadOnly
	}
	if _, ok := s.stash[p.StashKey]; !ok {
		return nil, contentstore.ErrMissingStashedImage
	}
	delete(s.stash, p.StashKey)

	now := s.Now()
	// The upload log entry is written before the description page exists;
	// its revision reference is patched in by the deferred step below.
	entry := &contentstore.LogEntry{
		Kind:      "upload",
		Target:    p.Target,
		Actor:     p.UserName,
		Params:    map[string]string{},
		Timestamp: now,
	}
	s.logs = append(s.logs, entry)
	s.writeAuditLocked("upload", p.Target, p.UserName, nil, ic)

	target, text, userName, comment := p.Target, p.PageText, p.UserName, p.Comment
	s.deferred = append(s.deferred, func(ctx context.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		rev := s.addRevisionLocked(target, text, comment, userName, false)
		entry.RevID = rev.ID
		entry.Params["revid"] = fmt.Sprintf("%d", rev.ID)
		if hook, ok := ic.(contentstore.DeferredLogHook); ok && hook != nil {
			hook.LogRevisionDeferred(entry, rev.ID)
		}
	})
	return &contentstore.Result{Timestamp: now}, nil
}

func (s *Store) ApplyMove(ctx context.Context, p contentstore.MoveParams, ic contentstore.AuditWriteInterceptor) (*contentstore.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return nil, contentstore.ErrReadOnly
	}
	src := s.pages[p.From.String()]
	if src == nil || len(src.revisions) == 0 {
		return nil, contentstore.ErrRevisionNotFound
	}
	if dst := s.pages[p.To.String()]; dst != nil && len(dst.revisions) > 0 {
		return nil, contentstore.ErrPageExists
	}

	// Move history to the destination; leave a redirect behind.
	moved := &page{target: p.To, revisions: src.revisions}
	for _, r := range moved.revisions {
		r.Target = p.To
	}
	s.pages[p.To.String()] = moved
	delete(s.pages, p.From.String())
	s.addRevisionLocked(p.From, fmt.Sprintf("#REDIRECT [[%s]]", p.To.Title), p.Reason, p.UserName, true)

	s.writeAuditLocked("move", p.From, p.UserName, nil, ic)
	s.logs = append(s.logs, &contentstore.LogEntry{
		Kind:      "move",
		Target:    p.From,
		Actor:     p.UserName,
		Params:    map[string]string{"target": p.To.Title},
		Timestamp: s.Now(),
	})
	return &contentstore.Result{Timestamp: s.Now()}, nil
}

func (s *Store) SetRevisionTimestamp(ctx context.Context, revID uint64, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pages {
		for _, r := range p.revisions {
			if r.ID == revID {
				r.Timestamp = ts
				for i := range s.audit {
					if s.audit[i].RevID == revID {
						s.audit[i].Timestamp = ts
					}
				}
				return nil
			}
		}
	}
	return contentstore.ErrRevisionNotFound
}

func (s *Store) AddTags(ctx context.Context, revID uint64, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.audit {
		if s.audit[i].RevID == revID {
			s.audit[i].Tags = append(s.audit[i].Tags, tags...)
			return nil
		}
	}
	// No audit row for this revision; record a bare tagging entry.
	s.audit = append(s.audit, contentstore.AuditRecord{Kind: "tag", RevID: revID, Tags: tags, Timestamp: s.Now()})
	return nil
}

func (s *Store) WriteLog(ctx context.Context, e contentstore.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = s.Now()
	}
	cp := e
	s.logs = append(s.logs, &cp)
	return nil
}

func (s *Store) Watch(ctx context.Context, userName string, t contentstore.Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watch[userName] = append(s.watch[userName], t)
	return nil
}

// RunDeferred executes queued deferred steps (description page creation
// after an upload), the way the real store drains its update queue at
// the end of a request.
func (s *Store) RunDeferred(ctx context.Context) {
	s.mu.Lock()
	steps := s.deferred
	s.deferred = nil
	s.mu.Unlock()
	for _, step := range steps {
		step(ctx)
	}
}

func (s *Store) addRevisionLocked(t contentstore.Target, text, summary, userName string, minor bool) *contentstore.Revision {
	s.nextRev++
	rev := &contentstore.Revision{
		ID:        s.nextRev,
		Target:    t,
		Text:      text,
		Summary:   summary,
		UserName:  userName,
		Minor:     minor,
		Timestamp: s.Now(),
	}
	pg := s.pages[t.String()]
	if pg == nil {
		pg = &page{target: t}
		s.pages[t.String()] = pg
	}
	pg.revisions = append(pg.revisions, rev)
	return rev
}

func (s *Store) writeAuditLocked(kind string, t contentstore.Target, userName string, rev *contentstore.Revision, ic contentstore.AuditWriteInterceptor) {
	rec := contentstore.AuditRecord{
		Kind:      kind,
		Target:    t,
		UserName:  userName,
		Timestamp: s.Now(),
	}
	if rev != nil {
		rec.RevID = rev.ID
	}
	if ic != nil {
		ic.BeforeAuditWrite(&rec)
	}
	s.audit = append(s.audit, rec)
}

// AuditRecords returns a copy of the audit log.
func (s *Store) AuditRecords() []contentstore.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contentstore.AuditRecord, len(s.audit))
	copy(out, s.audit)
	return out
}

// LogEntries returns a copy of the action log.
func (s *Store) LogEntries() []contentstore.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contentstore.LogEntry, 0, len(s.logs))
	for _, e := range s.logs {
		out = append(out, *e)
	}
	return out
}

// Watching returns the pages a user watches.
func (s *Store) Watching(userName string) []contentstore.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]contentstore.Target, len(s.watch[userName]))
	copy(out, s.watch[userName])
	return out
}
