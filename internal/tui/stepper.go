package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"

	"github.com/dshills/stepviz/internal/protocol"
	"github.com/dshills/stepviz/internal/session"
)

// consoleHeight is the number of console rows, title included.
const consoleHeight = 7

// stopTimeout bounds the wait for a stopped replay to end.
const stopTimeout = 2 * time.Second

// redraw is posted to wake the event loop after view changes.
type redraw struct{}

// quit is posted when the context ends.
type quit struct{}

// reload carries new source from another goroutine.
type reload struct{ source string }

// Stepper is the full-screen stepping front end.
type Stepper struct {
	screen  tcell.Screen
	session *session.Session
	player  *session.Player
	view    *View
	theme   Theme
	hl      *Highlighter
	logger  *zap.Logger

	source []string
	spans  [][]Span
	input  []rune
	asking *Interaction
	status string
	// auto resumes the player after an interaction is answered.
	auto bool
}

// StepperOption configures a Stepper.
type StepperOption func(*Stepper)

// WithTheme sets the color theme.
func WithTheme(t Theme) StepperOption {
	return func(st *Stepper) {
		st.theme = t
	}
}

// WithHighlighter enables syntax highlighting.
func WithHighlighter(h *Highlighter) StepperOption {
	return func(st *Stepper) {
		st.hl = h
	}
}

// WithPlayer enables auto-play with p.
func WithPlayer(p *session.Player) StepperOption {
	return func(st *Stepper) {
		st.player = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) StepperOption {
	return func(st *Stepper) {
		if l != nil {
			st.logger = l
		}
	}
}

// NewStepper creates a stepper drawing on an initialized screen and
// registers its view on the session bus.
func NewStepper(screen tcell.Screen, s *session.Session, opts ...StepperOption) (*Stepper, error) {
	st := &Stepper{
		screen:  screen,
		session: s,
		theme:   darkTheme(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(st)
	}
	st.view = NewView(func() {
		_ = screen.PostEvent(tcell.NewEventInterrupt(redraw{}))
	})
	if _, err := s.RegisterNotificationObserver(st.view); err != nil {
		return nil, err
	}
	return st, nil
}

// View returns the state the stepper displays.
func (st *Stepper) View() *View {
	return st.view
}

// Load compiles source into the session. Compilation errors are shown by
// the view; the result reports success.
func (st *Stepper) Load(source string) bool {
	st.stopPlayer()
	st.source = strings.Split(source, "\n")
	st.spans = nil
	if st.hl != nil {
		spans, err := st.hl.Highlight(source)
		if err != nil {
			st.logger.Warn("highlight failed", zap.Error(err))
		} else {
			st.spans = spans
		}
	}
	st.view.Reset()
	return st.session.SetSourceCode(source)
}

// StartAutoPlay starts a replay and plays it. Call it before Run.
func (st *Stepper) StartAutoPlay(ctx context.Context) {
	if st.player != nil && !st.player.Playing() {
		st.toggleAutoPlay(ctx)
	}
}

// Reload replaces the source from any goroutine. The event loop compiles
// it on its next iteration.
func (st *Stepper) Reload(source string) error {
	return st.screen.PostEvent(tcell.NewEventInterrupt(reload{source: source}))
}

// Run draws and handles keys until q is pressed or ctx ends.
func (st *Stepper) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = st.screen.PostEvent(tcell.NewEventInterrupt(quit{}))
		case <-done:
		}
	}()

	for {
		st.draw()
		switch ev := st.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			st.screen.Sync()
		case *tcell.EventInterrupt:
			switch data := ev.Data().(type) {
			case quit:
				st.stopPlayer()
				return ctx.Err()
			case reload:
				if st.Load(data.source) {
					st.status = "reloaded"
				}
			}
		case *tcell.EventKey:
			if st.handleKey(ctx, ev) {
				st.stopPlayer()
				st.session.StopExecution()
				return nil
			}
		}
	}
}

func (st *Stepper) stopPlayer() {
	st.auto = false
	if st.player != nil {
		st.player.Pause()
	}
}

// handleKey reports whether the stepper should quit.
func (st *Stepper) handleKey(ctx context.Context, ev *tcell.EventKey) bool {
	if p := st.view.Pending(); p != nil {
		st.handleModal(*p, ev)
		return false
	}
	if ev.Key() == tcell.KeyCtrlC || ev.Key() == tcell.KeyEscape {
		return true
	}
	if ev.Key() != tcell.KeyRune {
		return false
	}
	switch ev.Rune() {
	case 'q':
		return true
	case 'n', ' ':
		st.step(ctx)
	case 'a':
		st.toggleAutoPlay(ctx)
	case 's':
		st.stopPlayer()
		st.session.StopExecution()
		st.status = "stopped"
	case 'r':
		st.restart(ctx)
	}
	return false
}

func (st *Stepper) step(ctx context.Context) {
	switch st.session.State() {
	case session.StateIdle:
		st.restart(ctx)
	case session.StateReplayEnded:
		st.status = "finished, r restarts"
	default:
		if !st.session.AdvanceOneCodeLine() {
			st.status = "busy"
		}
	}
}

func (st *Stepper) restart(ctx context.Context) {
	st.stopPlayer()
	if st.session.State().Running() {
		st.session.StopExecution()
		waitCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		_ = st.session.Wait(waitCtx)
		cancel()
	}
	st.view.Reset()
	st.status = ""
	if err := st.session.StartReplay(ctx); err != nil {
		st.status = err.Error()
	}
}

func (st *Stepper) toggleAutoPlay(ctx context.Context) {
	if st.player == nil {
		st.status = "auto-play unavailable"
		return
	}
	if st.player.Playing() {
		st.stopPlayer()
		return
	}
	if !st.session.State().Running() {
		st.restart(ctx)
	}
	st.auto = true
	st.player.Play()
}

func (st *Stepper) handleModal(p Interaction, ev *tcell.EventKey) {
	if st.asking == nil || *st.asking != p {
		st.asking = &p
		st.input = []rune(p.Default)
	}
	switch p.Kind {
	case protocol.InteractionAlert:
		if ev.Key() == tcell.KeyEnter || ev.Key() == tcell.KeyEscape || ev.Rune() == ' ' {
			st.respond(p.Kind, nil)
		}
	case protocol.InteractionConfirm:
		switch {
		case ev.Key() == tcell.KeyEnter || ev.Rune() == 'y':
			st.respond(p.Kind, true)
		case ev.Key() == tcell.KeyEscape || ev.Rune() == 'n':
			st.respond(p.Kind, false)
		}
	case protocol.InteractionPrompt:
		switch ev.Key() {
		case tcell.KeyEnter:
			st.respond(p.Kind, string(st.input))
		case tcell.KeyEscape:
			st.respond(p.Kind, nil)
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			if len(st.input) > 0 {
				st.input = st.input[:len(st.input)-1]
			}
		case tcell.KeyRune:
			st.input = append(st.input, ev.Rune())
		}
	}
}

func (st *Stepper) respond(kind protocol.InteractionKind, value any) {
	st.asking = nil
	st.input = nil
	st.view.Answered()
	if err := st.session.OnUserInteractionResponse(kind, value); err != nil {
		st.status = err.Error()
		return
	}
	if st.auto && st.player != nil {
		st.player.Play()
	}
}

func (st *Stepper) draw() {
	state := st.view.Snapshot()
	t := st.theme
	st.screen.SetStyle(t.Base)
	st.screen.Clear()

	w, h := st.screen.Size()
	if w < 20 || h < consoleHeight+3 {
		st.text(0, 0, w, "terminal too small", t.Error)
		st.screen.Show()
		return
	}
	mainH := h - consoleHeight - 1
	srcW := w * 3 / 5

	st.drawSource(0, 0, srcW, mainH, state.Line)
	st.drawScopes(srcW+1, 0, w-srcW-1, mainH, state)
	st.drawConsole(0, mainH, w, consoleHeight, state.Console)
	st.drawStatus(h-1, w, state)
	if state.Pending != nil {
		st.drawModal(w, h, *state.Pending)
	}
	st.screen.Show()
}

func (st *Stepper) drawSource(x, y, w, h, current int) {
	t := st.theme
	st.text(x, y, w, "Source", t.Title)
	gutter := len(fmt.Sprint(len(st.source))) + 1

	first := 0
	if current > h-2 {
		first = current - (h-1)/2
	}
	for row := 1; row < h; row++ {
		i := first + row - 1
		if i >= len(st.source) {
			break
		}
		base := t.Base
		if i+1 == current {
			base = t.CurrentLine
			st.fill(x, y+row, w, base)
		}
		st.text(x, y+row, gutter, fmt.Sprintf("%*d", gutter-1, i+1), t.Gutter)
		st.line(x+gutter, y+row, w-gutter, i, base, i+1 == current)
	}
}

// line draws one source line with token styles. The current line keeps
// its background.
func (st *Stepper) line(x, y, w, i int, base tcell.Style, current bool) {
	src := st.source[i]
	var spans []Span
	if i < len(st.spans) {
		spans = st.spans[i]
	}
	col := 0
	for off, r := range src {
		if col >= w {
			return
		}
		style := base
		for _, sp := range spans {
			if off >= sp.Start && off < sp.End {
				style = st.theme.Token(sp.Class)
				if current {
					_, bg, _ := st.theme.CurrentLine.Decompose()
					style = style.Background(bg)
				}
				break
			}
		}
		if r == '\t' {
			r = ' '
		}
		st.screen.SetContent(x+col, y, r, nil, style)
		col += runewidth.RuneWidth(r)
	}
}

func (st *Stepper) drawScopes(x, y, w, h int, state ViewState) {
	t := st.theme
	st.text(x, y, w, "Scope", t.Title)
	row := 1
	for i := len(state.Frames) - 1; i >= 0 && row < h; i-- {
		f := state.Frames[i]
		st.text(x, y+row, w, f.Scope, t.Gutter)
		row++
		for _, v := range f.Vars {
			if row >= h {
				return
			}
			st.text(x+2, y+row, w-2, v.Name+" = "+v.Value, t.Base)
			row++
		}
	}
	if state.Structure != "" && row < h {
		st.text(x, y+h-1, w, state.Structure, t.Token(ClassFunction))
	}
}

func (st *Stepper) drawConsole(x, y, w, h int, lines []string) {
	t := st.theme
	st.text(x, y, w, strings.Repeat("─", 2)+" Console "+strings.Repeat("─", max(0, w-11)), t.Gutter)
	if over := len(lines) - (h - 1); over > 0 {
		lines = lines[over:]
	}
	for i, l := range lines {
		st.text(x, y+1+i, w, l, t.Base)
	}
}

func (st *Stepper) drawStatus(y, w int, state ViewState) {
	t := st.theme
	st.fill(0, y, w, t.Status)
	left := st.session.State().String()
	if st.player != nil && st.player.Playing() {
		left += " [auto]"
	}
	style := t.Status
	switch {
	case state.CompileError != "":
		left += " | " + state.CompileError
		style = t.Error
	case state.Exception != "":
		left += " | " + state.Exception
		style = t.Error
	case st.status != "":
		left += " | " + st.status
	}
	st.text(0, y, w, left, style)
	help := "n step  a auto  s stop  r restart  q quit"
	if hw := runewidth.StringWidth(help); hw+runewidth.StringWidth(left)+2 < w {
		st.text(w-hw, y, hw, help, t.Status)
	}
}

func (st *Stepper) drawModal(w, h int, p Interaction) {
	t := st.theme
	body := []string{p.Title}
	switch p.Kind {
	case protocol.InteractionAlert:
		body = append(body, "", "[enter] ok")
	case protocol.InteractionConfirm:
		body = append(body, "", "[y]es / [n]o")
	case protocol.InteractionPrompt:
		input := string(st.input)
		if st.asking == nil {
			input = p.Default
		}
		body = append(body, "> "+input+"_", "[enter] ok  [esc] cancel")
	}
	bw := min(w-4, 50)
	for _, l := range body {
		bw = max(bw, min(w-4, runewidth.StringWidth(l)+4))
	}
	bh := len(body) + 2
	x0, y0 := (w-bw)/2, (h-bh)/2
	for row := 0; row < bh; row++ {
		st.fill(x0, y0+row, bw, t.Modal)
	}
	st.text(x0+1, y0, bw-2, " "+p.Kind.String()+" ", t.Modal.Bold(true))
	for i, l := range body {
		st.text(x0+2, y0+1+i, bw-4, l, t.Modal)
	}
}

func (st *Stepper) fill(x, y, w int, style tcell.Style) {
	for i := 0; i < w; i++ {
		st.screen.SetContent(x+i, y, ' ', nil, style)
	}
}

// text draws s clipped to w cells.
func (st *Stepper) text(x, y, w int, s string, style tcell.Style) {
	col := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if col+rw > w {
			return
		}
		st.screen.SetContent(x+col, y, r, nil, style)
		col += rw
	}
}
