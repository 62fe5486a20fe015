package trace_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/stepviz/internal/session"
	"github.com/dshills/stepviz/internal/trace"
)

func TestRecordsAReplay(t *testing.T) {
	s := session.New()
	defer s.Close()
	rec := trace.NewRecorder()
	_, err := s.RegisterNotificationObserver(rec)
	require.NoError(t, err)
	p, err := session.NewPlayer(s, time.Millisecond)
	require.NoError(t, err)
	defer p.Close()

	src := "let x = 1;\nx = x + 1;\nconsole.log(x);\n"
	require.True(t, s.SetSourceCode(src))
	rec.Begin(src)
	require.NoError(t, s.StartReplay(context.Background()))
	p.Play()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	recs := rec.Records()
	sets, err := trace.Filter(recs, `op=="set"`)
	require.NoError(t, err)
	require.Len(t, sets, 1)

	res, err := trace.Query(recs, `#(op=="trace")#.msg`)
	require.NoError(t, err)
	assert.Equal(t, `["2"]`, res.Raw)

	run, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, trace.StatusFinished, run.Status)
}
