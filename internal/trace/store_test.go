package trace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "nested", DBName))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	older := Run{ID: "aaaa-1", Source: "let x = 1;", Status: StatusFinished, Started: time.UnixMilli(1000), Finished: time.UnixMilli(2000)}
	newer := Run{ID: "bbbb-2", Source: "throw 1;", Status: StatusException, Started: time.UnixMilli(3000), Finished: time.UnixMilli(3500)}
	require.NoError(t, s.SaveRun(ctx, older, sample))
	require.NoError(t, s.SaveRun(ctx, newer, sample[:1]))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "bbbb-2", runs[0].ID)
	assert.Equal(t, 1, runs[0].Ops)
	assert.Equal(t, older.Started, runs[1].Started)

	recs, err := s.Records(ctx, "aaaa-1", "")
	require.NoError(t, err)
	assert.Equal(t, sample, recs)

	marks, err := s.Records(ctx, "aaaa-1", OpMark)
	require.NoError(t, err)
	assert.Equal(t, []string{sample[1], sample[3]}, marks)
}

func TestStoreRunLookup(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.SaveRun(ctx, Run{ID: "abc-1", Status: StatusFinished}, nil))
	require.NoError(t, s.SaveRun(ctx, Run{ID: "abd-2", Status: StatusFinished}, nil))

	run, err := s.Run(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc-1", run.ID)

	_, err = s.Run(ctx, "ab")
	assert.True(t, IsNotFound(err), "ambiguous prefix")
	_, err = s.Run(ctx, "zzz")
	assert.True(t, IsNotFound(err))
}

func TestStoreSaveReplacesRun(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	run := Run{ID: "r", Status: StatusRunning}
	require.NoError(t, s.SaveRun(ctx, run, sample))
	run.Status = StatusFinished
	require.NoError(t, s.SaveRun(ctx, run, sample[:2]))

	got, err := s.Run(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, got.Status)
	recs, err := s.Records(ctx, "r", "")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestStoreDeleteRun(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.SaveRun(ctx, Run{ID: "r"}, sample))
	require.NoError(t, s.DeleteRun(ctx, "r"))

	recs, err := s.Records(ctx, "r", "")
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.True(t, IsNotFound(s.DeleteRun(ctx, "r")))
}

func TestRecorderPersistsIntoStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	r := NewRecorder(WithSink(s))
	id := r.Begin("src")
	r.Markcl(1)
	r.OnTraceMessage("x")
	r.OnExecutionFinished()

	recs, err := s.Records(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, []string{OpMark, OpTrace, OpFinished}, Ops(recs))
	run, err := s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "src", run.Source)
}
