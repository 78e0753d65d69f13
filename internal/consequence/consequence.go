// Package consequence implements the command objects every side effect
// of the moderation engine is expressed through. A Consequence is an
// immutable value fully defined by its constructor arguments, performs
// exactly one high-level operation, and carries no guards; whether to
// run it is always the caller's decision. The set of consequences is
// closed so a test harness can enumerate and substitute every effect.
package consequence

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Consequence is one side effect. Running it twice with identical
// constructor arguments has identical effect.
type Consequence interface {
	Name() string
	Run(ctx context.Context) (interface{}, error)
}

// Manager accumulates and executes consequences in order.
type Manager interface {
	// Add executes c immediately and returns its result.
	Add(ctx context.Context, c Consequence) (interface{}, error)
}

type manager struct {
	log zerolog.Logger
}

// NewManager creates an executing Manager.
func NewManager(log zerolog.Logger) Manager {
	return &manager{log: log}
}

func (m *manager) Add(ctx context.Context, c Consequence) (interface{}, error) {
	res, err := c.Run(ctx)
	if err != nil {
		m.log.Error().Err(err).Str("consequence", c.Name()).Msg("consequence failed")
	}
	return res, err
}

// RecordingManager captures consequences instead of executing them, for
// tests asserting on the engine's side effects. Results come from Stub
// when set, otherwise (nil, nil).
type RecordingManager struct {
	mu    sync.Mutex
	added []Consequence

	// Stub, when non-nil, supplies the result for each consequence.
	Stub func(Consequence) (interface{}, error)
	// Execute, when true, records and still runs the consequence.
	Execute bool
}

// NewRecordingManager creates a RecordingManager.
func NewRecordingManager() *RecordingManager {
	return &RecordingManager{}
}

func (m *RecordingManager) Add(ctx context.Context, c Consequence) (interface{}, error) {
	m.mu.Lock()
	m.added = append(m.added, c)
	m.mu.Unlock()
	if m.Execute {
		return c.Run(ctx)
	}
	if m.Stub != nil {
		return m.Stub(c)
	}
	return nil, nil
}

// Added returns the consequences seen so far, in order.
func (m *RecordingManager) Added() []Consequence {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Consequence, len(m.added))
	copy(out, m.added)
	return out
}

// Names returns the names of the consequences seen so far, in order.
func (m *RecordingManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.added))
	for i, c := range m.added {
		out[i] = c.Name()
	}
	return out
}
