package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wikigate/moderation-backend/internal/consequence"
	"github.com/wikigate/moderation-backend/internal/contentstore"
	"github.com/wikigate/moderation-backend/internal/contentstore/memstore"
	"github.com/wikigate/moderation-backend/internal/domain"
	"github.com/wikigate/moderation-backend/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type env struct {
	db       *gorm.DB
	repo     repository.QueueRepository
	blocks   repository.BlockRepository
	tags     repository.TagRepository
	store    *memstore.Store
	registry *ApproveTaskRegistry
	policy   *Policy
	notify   *NotifyService
	sink     *captureSink
	queue    *QueueService
	mod      *ModerationService
}

func newEnv(t *testing.T) *env {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.PendingChange{}, &domain.ModerationBlock{}, &domain.RevisionTag{},
	))

	e := &env{
		db:       db,
		repo:     repository.NewQueueRepository(db),
		blocks:   repository.NewBlockRepository(db),
		tags:     repository.NewTagRepository(db),
		store:    memstore.New(),
		registry: NewApproveTaskRegistry(),
		sink:     &captureSink{},
	}
	e.policy = NewPolicy(PolicyConfig{Enabled: true}, e.registry)
	e.notify = NewNotifyService(nil, e.repo, zerolog.Nop())
	cm := consequence.NewManager(zerolog.Nop())
	e.queue = NewQueueService(e.repo, e.blocks, e.store, e.policy, e.notify, cm, zerolog.Nop())
	e.mod = NewModerationService(e.repo, e.blocks, e.tags, e.store, e.registry, e.notify, e.sink, cm, zerolog.Nop())
	return e
}

// captureSink records notifications for assertions.
type captureSink struct {
	mu   sync.Mutex
	sent []sentNotification
}

type sentNotification struct {
	UserName string
	Code     string
	Params   map[string]string
}

func (s *captureSink) Send(ctx context.Context, userName, code string, params map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentNotification{UserName: userName, Code: code, Params: params})
	return nil
}

func (s *captureSink) Sent() []sentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentNotification, len(s.sent))
	copy(out, s.sent)
	return out
}

func author() Actor {
	return Actor{
		ID:         7,
		Name:       "alice",
		Registered: true,
		IP:         "203.0.113.9",
		XFF:        "203.0.113.9, 10.0.0.2",
		UserAgent:  "Mozilla/5.0 (test)",
	}
}

func moderator(caps ...string) Actor {
	return Actor{
		ID:           1,
		Name:         "mod",
		Registered:   true,
		Capabilities: append([]string{CapModerate}, caps...),
		IP:           "198.51.100.1",
		UserAgent:    "moderator-browser",
	}
}

// queueEditFor pushes an edit into the queue through the intercept path
// and returns the row id.
func queueEditFor(t *testing.T, e *env, actor Actor, title, text string, baseRevID uint64) uint64 {
	t.Helper()
	res, err := e.queue.InterceptEdit(context.Background(), EditRequest{
		Actor:     actor,
		Title:     title,
		Text:      text,
		Summary:   "queued edit",
		BaseRevID: baseRevID,
	})
	require.NoError(t, err)
	require.True(t, res.Queued)
	return res.ID
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func repositoryFilter(folder string) repository.ListFilter {
	return repository.ListFilter{Folder: folder}
}

func editParams(title, text, userName string) contentstore.EditParams {
	return contentstore.EditParams{
		Target:   contentstore.Target{Title: title},
		Text:     text,
		UserName: userName,
	}
}
