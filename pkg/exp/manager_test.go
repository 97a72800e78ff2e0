package exp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Count   int  `json:"count"`
	Partial bool `json:"partial"`
}

func (s *sample) MarshalJSON() ([]byte, error) {
	type Alias sample
	return json.Marshal((*Alias)(s))
}

func (s *sample) UnmarshalJSON(data []byte) error {
	type Alias sample
	return json.Unmarshal(data, (*Alias)(s))
}

func newTestManager(t *testing.T) (*Manager[*sample], *FileStorage[*sample]) {
	t.Helper()
	fs, err := NewFileStorage[*sample](t.TempDir())
	require.NoError(t, err)
	return NewManager(fs, zerolog.Nop()), fs
}

func TestManager_RunToCompletion(t *testing.T) {
	m, _ := newTestManager(t)
	collect := func(ctx context.Context) (*sample, error) {
		return &sample{Count: 3}, nil
	}

	done := make(chan string, 1)
	m.OnDone(func(id string, data *sample, err error) {
		assert.NoError(t, err)
		assert.Equal(t, 3, data.Count)
		done <- id
	})

	require.NoError(t, m.Start(context.Background(), "run-1", time.Minute, collect))
	m.Wait()

	assert.Equal(t, "run-1", <-done)
	assert.Equal(t, Pending, m.GetStatus())
	assert.Empty(t, m.GetCurrentExperimentID())

	got, err := m.GetExperiment("run-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Count)
}

func TestManager_SingleRun(t *testing.T) {
	m, _ := newTestManager(t)
	collect := func(ctx context.Context) (*sample, error) {
		<-ctx.Done()
		return &sample{Partial: true}, nil
	}

	require.NoError(t, m.Start(context.Background(), "a", time.Minute, collect))
	assert.Equal(t, Running, m.GetStatus())
	assert.Equal(t, "a", m.GetCurrentExperimentID())

	err := m.Start(context.Background(), "b", time.Minute, collect)
	assert.True(t, errors.Is(err, ErrAlreadyRunning))

	require.NoError(t, m.Stop())
	assert.Equal(t, Pending, m.GetStatus())

	got, err := m.GetExperiment("a")
	require.NoError(t, err)
	assert.True(t, got.Partial, "stopped run keeps its partial data")

	assert.True(t, errors.Is(m.Stop(), ErrNotRunning))
}

func TestManager_Timeout(t *testing.T) {
	m, _ := newTestManager(t)
	collect := func(ctx context.Context) (*sample, error) {
		<-ctx.Done()
		return &sample{Count: 1}, nil
	}

	require.NoError(t, m.Start(context.Background(), "t", 20*time.Millisecond, collect))
	m.Wait()
	assert.Equal(t, Pending, m.GetStatus())
}

func TestManager_CollectError(t *testing.T) {
	m, fs := newTestManager(t)
	collect := func(ctx context.Context) (*sample, error) {
		return nil, errors.New("boom")
	}

	require.NoError(t, m.Start(context.Background(), "bad", time.Minute, collect))
	m.Wait()

	infos, err := fs.List()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestManager_StartValidation(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Error(t, m.Start(context.Background(), "x", time.Second, nil), "no collector")

	collect := func(ctx context.Context) (*sample, error) { return &sample{}, nil }
	assert.Error(t, m.Start(context.Background(), "", time.Second, collect), "empty id")
	assert.Equal(t, Pending, m.GetStatus())
}

func TestFileStorage_ListOldestFirst(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStorage[*sample](dir)
	require.NoError(t, err)

	require.NoError(t, fs.Save("second", &sample{Count: 2}))
	require.NoError(t, fs.Save("first", &sample{Count: 1}))

	base := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "first.json"), base, base))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "second.json"), base.Add(time.Second), base.Add(time.Second)))

	// Ignored entries.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial-1.tmp"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0755))

	infos, err := fs.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "first", infos[0].ID)
	assert.Equal(t, "second", infos[1].ID)
}

func TestFileStorage_LoadMissing(t *testing.T) {
	fs, err := NewFileStorage[*sample](t.TempDir())
	require.NoError(t, err)

	_, err = fs.Load("nope")
	assert.True(t, os.IsNotExist(errors.Cause(err)))
}
