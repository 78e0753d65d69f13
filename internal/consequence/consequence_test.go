package consequence

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fake struct {
	name   string
	result interface{}
	err    error
	runs   *int
}

func (f *fake) Name() string { return f.name }
func (f *fake) Run(ctx context.Context) (interface{}, error) {
	if f.runs != nil {
		*f.runs++
	}
	return f.result, f.err
}

func TestManagerExecutesAndReturnsResult(t *testing.T) {
	m := NewManager(zerolog.Nop())
	runs := 0

	res, err := m.Add(context.Background(), &fake{name: "A", result: uint64(7), runs: &runs})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), res)
	assert.Equal(t, 1, runs)
}

func TestManagerPropagatesError(t *testing.T) {
	m := NewManager(zerolog.Nop())
	boom := errors.New("store down")

	_, err := m.Add(context.Background(), &fake{name: "A", err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestRecordingManagerCapturesWithoutRunning(t *testing.T) {
	m := NewRecordingManager()
	runs := 0

	res, err := m.Add(context.Background(), &fake{name: "QueueEdit", runs: &runs})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Zero(t, runs, "recording only")

	_, err = m.Add(context.Background(), &fake{name: "InvalidatePendingCache", runs: &runs})
	require.NoError(t, err)

	assert.Equal(t, []string{"QueueEdit", "InvalidatePendingCache"}, m.Names())
	assert.Len(t, m.Added(), 2)
}

func TestRecordingManagerStub(t *testing.T) {
	m := NewRecordingManager()
	m.Stub = func(c Consequence) (interface{}, error) {
		if c.Name() == "QueueEdit" {
			return uint64(42), nil
		}
		return nil, nil
	}

	res, err := m.Add(context.Background(), &fake{name: "QueueEdit"})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), res)
}

func TestRecordingManagerExecuteMode(t *testing.T) {
	m := NewRecordingManager()
	m.Execute = true
	runs := 0

	res, err := m.Add(context.Background(), &fake{name: "A", result: "done", runs: &runs})
	require.NoError(t, err)
	assert.Equal(t, "done", res)
	assert.Equal(t, 1, runs)
	assert.Equal(t, []string{"A"}, m.Names())
}
