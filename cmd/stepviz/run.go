package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/stepviz/internal/config"
	"github.com/dshills/stepviz/internal/logging"
	"github.com/dshills/stepviz/internal/session"
	"github.com/dshills/stepviz/internal/trace"
	"github.com/dshills/stepviz/internal/tui"
	"github.com/dshills/stepviz/internal/watch"
)

// frontend is a stepping user interface.
type frontend interface {
	Load(source string) bool
	Reload(source string) error
	Run(ctx context.Context) error
}

type runOptions struct {
	snippet int
	watch   bool
}

func newRunCmd(a *app) *cobra.Command {
	o := runOptions{snippet: -1}
	cmd := &cobra.Command{
		Use:   "run [FILE]",
		Short: "Step through a snippet",
		Long: `run loads FILE, or a library snippet with --snippet, and steps through it.

The full-screen interface is used when both standard input and output are
terminals, a line-oriented prompt otherwise. Keys and commands: n steps,
a toggles auto-play (c continues in line mode), s stops, r restarts and
q quits.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args, o)
		},
	}
	f := cmd.Flags()
	f.IntVar(&o.snippet, "snippet", -1, "step through library snippet ID")
	f.BoolVarP(&o.watch, "watch", "w", false, "reload FILE when it changes")
	f.String("ui", "", "interface: auto, tui or line")
	f.String("theme", "", "color theme: dark, light or mono")
	f.Bool("no-highlight", false, "disable syntax highlighting")
	f.String("trace", "", "record runs as JSON lines in this directory")
	f.Bool("sqlite", false, "also store runs in the trace directory database")
	f.Bool("auto", false, "start in auto-play")
	f.String("delay", "", "auto-play delay between lines, e.g. 250ms")
	f.String("snippets-file", "", "YAML snippet library for --snippet")
	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string, o runOptions) error {
	ctx := cmd.Context()
	path, src, err := a.loadSource(cmd, args, o.snippet)
	if err != nil {
		return err
	}
	if o.watch && path == "" {
		return errors.New("--watch needs FILE")
	}

	mode, err := a.resolveMode(cmd)
	if err != nil {
		return err
	}
	logger := a.logger
	if mode == config.ModeTUI && logsToTerminal(a.cfg.Log) {
		logger = logging.Nop()
	}

	s := session.New(session.WithLogger(logging.Component(logger, "session")))
	defer s.Close()

	var current atomic.Value
	current.Store(src)
	rec, closeTrace, err := a.openRecorder(logger, func() string { return current.Load().(string) })
	if err != nil {
		return err
	}
	defer closeTrace()
	if rec != nil {
		if _, err := s.RegisterNotificationObserver(rec); err != nil {
			return err
		}
		defer s.Bus().Unregister(rec)
	}

	player, err := session.NewPlayer(s, a.cfg.Session.StepDelay.Std())
	if err != nil {
		return err
	}
	defer player.Close()

	var front frontend
	switch mode {
	case config.ModeTUI:
		st, done, err := a.newStepper(s, player, logger)
		if err != nil {
			return err
		}
		defer done()
		front = st
		if st.Load(src) && a.cfg.Session.AutoPlay {
			st.StartAutoPlay(ctx)
		}
	default:
		out := &lockedWriter{w: cmd.OutOrStdout()}
		in, done := a.newPrompter(cmd, out)
		defer done()
		ls, err := tui.NewLineStepper(s, in, out, logging.Component(logger, "line"))
		if err != nil {
			return err
		}
		front = ls
		if ls.Load(src) && a.cfg.Session.AutoPlay {
			if err := s.StartReplay(ctx); err != nil {
				return err
			}
			player.Play()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	uiCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return front.Run(uiCtx)
	})
	if o.watch {
		w, err := watch.New(path, watch.WithLogger(logging.Component(logger, "watch")))
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		defer w.Close()
		g.Go(func() error {
			return w.Run(uiCtx, func(ev watch.Event) error {
				if ev.Op == watch.OpRemove {
					return nil
				}
				data, err := os.ReadFile(path)
				if err != nil {
					logger.Warn("reload failed", zap.String("path", path), zap.Error(err))
					return nil
				}
				current.Store(string(data))
				logger.Debug("source changed", zap.String("path", path), zap.Stringer("op", ev.Op))
				return front.Reload(string(data))
			})
		})
	}

	// Canceled means the interface quit or a signal arrived.
	if err = g.Wait(); errors.Is(err, context.Canceled) {
		err = nil
	}
	if rec != nil {
		if rerr := rec.Err(); rerr != nil {
			logger.Warn("trace incomplete", zap.Error(rerr))
		}
	}
	return err
}

// loadSource returns the path and text to step through.
func (a *app) loadSource(cmd *cobra.Command, args []string, id int) (string, string, error) {
	switch {
	case id >= 0 && len(args) > 0:
		return "", "", errors.New("pass FILE or --snippet, not both")
	case id >= 0:
		lib, err := a.library()
		if err != nil {
			return "", "", err
		}
		s, err := lib.Get(id)
		if err != nil {
			return "", "", err
		}
		return "", s.Code, nil
	case len(args) == 0:
		return "", "", errors.New("nothing to run: pass FILE or --snippet ID")
	}
	src, err := readSource(cmd, args[0])
	if err != nil {
		return "", "", err
	}
	if args[0] == "-" {
		return "", src, nil
	}
	return args[0], src, nil
}

// resolveMode picks the interface. Only the process terminal can host the
// full-screen one.
func (a *app) resolveMode(cmd *cobra.Command) (string, error) {
	in, _ := cmd.InOrStdin().(*os.File)
	out, _ := cmd.OutOrStdout().(*os.File)
	return tui.ResolveMode(a.cfg.UI.Mode, in, out)
}

func logsToTerminal(c logging.Config) bool {
	return c.Output == "" || c.Output == "stderr" || c.Output == "stdout"
}

// openRecorder creates a recorder writing Dir/stepviz-<time>.jsonl when a
// trace directory is configured.
func (a *app) openRecorder(logger *zap.Logger, source func() string) (*trace.Recorder, func(), error) {
	dir := a.cfg.Trace.Dir
	if dir == "" {
		return nil, func() {}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create trace directory: %w", err)
	}
	name := filepath.Join(dir, "stepviz-"+time.Now().Format("20060102-150405")+".jsonl")
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace file: %w", err)
	}

	opts := []trace.Option{
		trace.WithLogger(logging.Component(logger, "trace")),
		trace.WithWriter(f),
		trace.WithAutoBegin(source),
	}
	var store *trace.Store
	if a.cfg.Trace.SQLite {
		store, err = trace.OpenStore(filepath.Join(dir, trace.DBName))
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		opts = append(opts, trace.WithSink(store))
	}
	rec := trace.NewRecorder(opts...)
	logger.Info("recording trace", zap.String("file", name), zap.Bool("sqlite", store != nil))

	return rec, func() {
		rec.End(trace.StatusAborted)
		if store != nil {
			_ = store.Close()
		}
		_ = f.Close()
	}, nil
}

// newStepper opens the terminal screen and builds the full-screen stepper.
func (a *app) newStepper(s *session.Session, p *session.Player, logger *zap.Logger) (*tui.Stepper, func(), error) {
	theme, err := tui.ThemeByName(a.cfg.UI.Theme)
	if err != nil {
		return nil, nil, err
	}
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}

	opts := []tui.StepperOption{
		tui.WithTheme(theme),
		tui.WithPlayer(p),
		tui.WithLogger(logging.Component(logger, "tui")),
	}
	var hl *tui.Highlighter
	if a.cfg.UI.Highlight {
		hl = tui.NewHighlighter()
		opts = append(opts, tui.WithHighlighter(hl))
	}
	done := func() {
		screen.Fini()
		if hl != nil {
			hl.Close()
		}
	}
	st, err := tui.NewStepper(screen, s, opts...)
	if err != nil {
		done()
		return nil, nil, err
	}
	return st, done, nil
}

// newPrompter returns a line editor on a terminal and a plain line reader
// otherwise.
func (a *app) newPrompter(cmd *cobra.Command, out io.Writer) (tui.Prompter, func()) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && f == os.Stdin && tui.IsTerminal(f) {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		return state, func() { _ = state.Close() }
	}
	return &lineReader{in: bufio.NewReader(cmd.InOrStdin()), out: out}, func() {}
}

// lockedWriter serializes prompts with notification output.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// lineReader prompts on out and reads lines from a non-terminal input.
type lineReader struct {
	in  *bufio.Reader
	out io.Writer
}

func (r *lineReader) Prompt(prompt string) (string, error) {
	if _, err := io.WriteString(r.out, prompt); err != nil {
		return "", err
	}
	line, err := r.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return trimEOL(line), nil
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
