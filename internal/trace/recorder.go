// Package trace records what a replay did.
//
// A Recorder listens on the session notification bus and turns every
// notification into one JSON object per line:
//
//	{"seq":4,"run":"…","op":"set","line":3,"scope":"global","name":"x","value":2}
//
// Records can be written to a stream as they happen, filtered with gjson
// paths, and persisted per run into SQLite.
package trace

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/dshills/stepviz/internal/graph"
	"github.com/dshills/stepviz/internal/observable"
	"github.com/dshills/stepviz/internal/protocol"
)

// Operation names.
const (
	OpEnter      = "enter"
	OpExit       = "exit"
	OpSet        = "set"
	OpReference  = "ref"
	OpMark       = "mark"
	OpTrace      = "trace"
	OpCompile    = "compile"
	OpException  = "exception"
	OpInteract   = "interact"
	OpFinished   = "finished"
	OpAccess     = "access"
	OpAddNode    = "addNode"
	OpRemoveNode = "removeNode"
	OpAddEdge    = "addEdge"
	OpRemoveEdge = "removeEdge"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusFinished  = "finished"
	StatusException = "exception"
	StatusAborted   = "aborted"
)

// Run describes one recorded replay.
type Run struct {
	ID       string
	Source   string
	Status   string
	Started  time.Time
	Finished time.Time
	Ops      int
}

// Sink persists finished runs.
type Sink interface {
	SaveRun(ctx context.Context, run Run, records []string) error
}

// Recorder turns bus notifications into trace records. It is safe for
// concurrent use.
type Recorder struct {
	logger *zap.Logger
	out    io.Writer
	sink   Sink
	now    func() time.Time
	// source, when set, starts a run on the first notification after the
	// previous run ended.
	source func() string

	mu      sync.Mutex
	run     *Run
	seq     int
	line    int
	records []string
	watched map[*observable.Observable]string
	err     error
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithWriter streams every record, newline terminated, to w.
func WithWriter(w io.Writer) Option {
	return func(r *Recorder) {
		r.out = w
	}
}

// WithSink persists each run when it ends.
func WithSink(s Sink) Option {
	return func(r *Recorder) {
		r.sink = s
	}
}

// WithAutoBegin starts a run for source() whenever a notification arrives
// and no run is in progress. Compilation errors, exceptions and the end of
// a replay never start a run.
func WithAutoBegin(source func() string) Option {
	return func(r *Recorder) {
		r.source = source
	}
}

// NewRecorder creates an idle recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		logger:  zap.NewNop(),
		now:     time.Now,
		watched: make(map[*observable.Observable]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin starts a new run for source and returns its id. A run still in
// progress is ended as aborted.
func (r *Recorder) Begin(source string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.beginLocked(source)
}

func (r *Recorder) beginLocked(source string) string {
	if r.run != nil {
		r.endLocked(StatusAborted)
	}
	r.run = &Run{
		ID:      uuid.NewString(),
		Source:  source,
		Status:  StatusRunning,
		Started: r.now(),
	}
	r.seq = 0
	r.line = 0
	r.records = nil
	r.logger.Debug("trace run started", zap.String("run", r.run.ID))
	return r.run.ID
}

// running reports whether a run accepts records, starting one when auto
// begin is enabled. r.mu must be held.
func (r *Recorder) running(op string) bool {
	if r.run != nil && r.run.Status == StatusRunning {
		return true
	}
	switch {
	case r.source == nil:
		return false
	case op == OpCompile, op == OpException, op == OpFinished:
		return false
	}
	r.beginLocked(r.source())
	return true
}

// End finishes the current run with status, if any.
func (r *Recorder) End(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run != nil {
		r.endLocked(status)
	}
}

// Records returns the records of the current or last run.
func (r *Recorder) Records() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.records...)
}

// Last returns the current or last run.
func (r *Recorder) Last() (Run, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return Run{}, false
	}
	return *r.run, true
}

// Err returns the first write or persist error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// endLocked must be called with r.mu held.
func (r *Recorder) endLocked(status string) {
	if r.run.Status != StatusRunning {
		return
	}
	for o := range r.watched {
		o.Unsubscribe(r)
	}
	clear(r.watched)
	r.run.Status = status
	r.run.Finished = r.now()
	r.run.Ops = len(r.records)
	if r.sink == nil {
		return
	}
	if err := r.sink.SaveRun(context.Background(), *r.run, r.records); err != nil {
		r.logger.Error("persist trace run", zap.String("run", r.run.ID), zap.Error(err))
		r.setErr(err)
	}
}

func (r *Recorder) setErr(err error) {
	if r.err == nil {
		r.err = err
	}
}

// field is a record key and value.
type field struct {
	key   string
	value any
}

func f(key string, value any) field { return field{key, value} }

func (r *Recorder) record(op string, fields ...field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running(op) {
		return
	}
	r.seq++

	rec := `{}`
	rec, _ = sjson.Set(rec, "seq", r.seq)
	rec, _ = sjson.Set(rec, "run", r.run.ID)
	rec, _ = sjson.Set(rec, "op", op)
	rec, _ = sjson.Set(rec, "line", r.line)
	for _, fd := range fields {
		next, err := sjson.Set(rec, fd.key, fd.value)
		if err != nil {
			next, _ = sjson.Set(rec, fd.key, observable.Format(fd.value))
		}
		rec = next
	}
	r.records = append(r.records, rec)

	if r.out == nil {
		return
	}
	if _, err := io.WriteString(r.out, rec+"\n"); err != nil {
		r.logger.Warn("write trace record", zap.Error(err))
		r.setErr(err)
	}
}

// OnEnterScopeVariable records a frame or variable entering scope and
// starts following the variable's value changes.
func (r *Recorder) OnEnterScopeVariable(scope string, o *observable.Observable) {
	if o == nil {
		r.record(OpEnter, f("scope", scope))
		return
	}
	r.mu.Lock()
	if r.running(OpEnter) {
		r.watched[o] = scope
		o.Subscribe(r)
	}
	r.mu.Unlock()
	r.record(OpEnter, variable(scope, o)...)
}

// OnExitScopeVariable records a frame or variable leaving scope.
func (r *Recorder) OnExitScopeVariable(scope string, o *observable.Observable) {
	if o == nil {
		r.record(OpExit, f("scope", scope))
		return
	}
	r.mu.Lock()
	delete(r.watched, o)
	r.mu.Unlock()
	o.Unsubscribe(r)
	r.record(OpExit, f("scope", scope), f("name", o.Name()))
}

func variable(scope string, o *observable.Observable) []field {
	fields := []field{f("scope", scope), f("name", o.Name()), f("kind", o.Kind().String())}
	switch o.Kind() {
	case observable.KindReference:
		fields = append(fields, f("target", o.Reference()))
	case observable.KindGraph:
		fields = append(fields, f("value", o.String()))
	default:
		fields = append(fields, f("value", o.Value()))
	}
	return fields
}

func (r *Recorder) scopeOf(o *observable.Observable) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watched[o]
}

// OnSet records a value change.
func (r *Recorder) OnSet(o *observable.Observable, _, val any) {
	r.record(OpSet, f("scope", r.scopeOf(o)), f("name", o.Name()), f("value", val))
}

// OnSetReference records a reference change.
func (r *Recorder) OnSetReference(o *observable.Observable, _, target string) {
	r.record(OpReference, f("scope", r.scopeOf(o)), f("name", o.Name()), f("target", target))
}

// Markcl records the line about to execute.
func (r *Recorder) Markcl(line int) {
	r.mu.Lock()
	if r.running(OpMark) {
		r.line = line
	}
	r.mu.Unlock()
	r.record(OpMark)
}

// OnTraceMessage records console output.
func (r *Recorder) OnTraceMessage(msg string) {
	r.record(OpTrace, f("msg", msg))
}

// OnCompilationError records a compilation error. Clears are ignored.
func (r *Recorder) OnCompilationError(status bool, msg string) {
	if status {
		r.record(OpCompile, f("msg", msg))
	}
}

// OnExceptionMessage records an exception and ends the run.
func (r *Recorder) OnExceptionMessage(status bool, msg string) {
	if !status {
		return
	}
	r.record(OpException, f("msg", msg))
	r.End(StatusException)
}

// OnUserInteractionRequest records an interaction request.
func (r *Recorder) OnUserInteractionRequest(kind protocol.InteractionKind, title, def string) {
	r.record(OpInteract, f("kind", kind.String()), f("title", title), f("default", def))
}

// OnExecutionFinished records the end of the replay and ends the run.
func (r *Recorder) OnExecutionFinished() {
	r.record(OpFinished)
	r.End(StatusFinished)
}

func structureName(o *observable.Observable) string {
	if o == nil {
		return ""
	}
	return o.Name()
}

// OnAccessNode records a node access.
func (r *Recorder) OnAccessNode(o *observable.Observable, n graph.Node, access graph.AccessType) {
	r.record(OpAccess, f("name", structureName(o)), f("node", n.Label), f("access", access.String()))
}

// OnAddEdge records an added edge.
func (r *Recorder) OnAddEdge(o *observable.Observable, src, dst graph.Node) {
	r.record(OpAddEdge, f("name", structureName(o)), f("src", src.Label), f("dst", dst.Label))
}

// OnAddNode records an added node.
func (r *Recorder) OnAddNode(o *observable.Observable, n graph.Node, parent *graph.Node, side *graph.ChildSide) {
	fields := []field{f("name", structureName(o)), f("node", n.Label)}
	if parent != nil {
		fields = append(fields, f("parent", parent.Label))
	}
	if side != nil {
		fields = append(fields, f("side", side.String()))
	}
	r.record(OpAddNode, fields...)
}

// OnRemoveNode records a removed node.
func (r *Recorder) OnRemoveNode(o *observable.Observable, n graph.Node) {
	r.record(OpRemoveNode, f("name", structureName(o)), f("node", n.Label))
}

// OnRemoveEdge records a removed edge.
func (r *Recorder) OnRemoveEdge(o *observable.Observable, src, dst graph.Node) {
	r.record(OpRemoveEdge, f("name", structureName(o)), f("src", src.Label), f("dst", dst.Label))
}
