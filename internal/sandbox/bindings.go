package sandbox

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/dshills/stepviz/internal/observable"
	"github.com/dshills/stepviz/internal/protocol"
)

// hooks returns the injected calls by name.
func (a *Agent) hooks() map[string]any {
	return map[string]any{
		"markcl":      func(line int64) { a.step(protocol.CmdMarkcl, line) },
		"forcemarkcl": func(line int64) { a.step(protocol.CmdForceMarkcl, line) },
		"startScope":  func(name string) { a.notify(protocol.CmdStartScope, name) },
		"endScope":    func(name string) { a.notify(protocol.CmdEndScope, name) },
		"setVar":      a.setVar,
		"pushParams":  a.params(protocol.CmdPushParams),
		"popParams":   a.params(protocol.CmdPopParams),
		"alertWrap":   a.alert,
		"confirmWrap": a.confirm,
		"promptWrap":  a.prompt,
	}
}

// installHooks defines the injected calls on the global object. It runs
// before every run so a snippet that overwrote one does not leak into the
// next.
func (a *Agent) installHooks() {
	fns := a.hooks()
	for _, name := range HookNames {
		if err := a.vm.Set(name, fns[name]); err != nil {
			a.logger.Warn("install hook failed", zap.String("name", name), zap.Error(err))
		}
	}
}

// bindings returns the argument values in BindingNames order.
func (a *Agent) bindings() []goja.Value {
	fns := a.structureBindings()
	fns["console"] = a.console

	args := make([]goja.Value, len(BindingNames))
	for i, name := range BindingNames {
		args[i] = a.vm.ToValue(fns[name])
	}
	return args
}

// notify posts an event unless the run is being halted.
func (a *Agent) notify(cmd protocol.Command, params ...any) {
	if a.halting {
		return
	}
	if !a.post(cmd, params...) {
		a.halt()
	}
}

// step reports the line about to execute and parks until the host lets it
// proceed.
func (a *Agent) step(cmd protocol.Command, line int64) {
	if a.halting {
		return
	}
	a.cb.StoreSignal(protocol.SlotMain, protocol.SignalWait)
	if !a.post(cmd, int(line)) {
		a.halt()
		return
	}
	a.park()
}

// park blocks while MAIN holds Wait. A stop request or a cancelled run
// halts the snippet. It reports whether execution may continue.
func (a *Agent) park() bool {
	for {
		if a.cb.LoadSignal(protocol.SlotAux) == protocol.SignalStop {
			a.halt()
			return false
		}
		if a.cb.LoadSignal(protocol.SlotMain) != protocol.SignalWait {
			return true
		}
		if _, err := a.cb.Wait(a.ctx, protocol.SlotMain, int32(protocol.SignalWait)); err != nil {
			a.halt()
			return false
		}
	}
}

// interact posts an interaction request and parks until the host writes a
// response.
func (a *Agent) interact(kind protocol.InteractionKind, title, def string) (any, bool) {
	if a.halting {
		return nil, false
	}
	a.cb.StoreSignal(protocol.SlotMain, protocol.SignalWait)
	if !a.post(protocol.CmdUserInteractionRequest, kind, title, def) {
		a.halt()
		return nil, false
	}
	if !a.park() {
		return nil, false
	}
	got, v := a.cb.ReadResponse()
	a.cb.CompareAndSwap(protocol.SlotAux, int32(protocol.SignalUserInteractionResponse), int32(protocol.SignalNoOp))
	if got != kind {
		a.logger.Warn("interaction response kind mismatch", zap.Stringer("want", kind), zap.Stringer("got", got))
	}
	return v, true
}

func (a *Agent) alert(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = a.text(arg)
	}
	a.interact(protocol.InteractionAlert, strings.Join(parts, " "), "")
	return goja.Undefined()
}

func (a *Agent) confirm(call goja.FunctionCall) goja.Value {
	v, ok := a.interact(protocol.InteractionConfirm, a.text(call.Argument(0)), "")
	b, _ := v.(bool)
	return a.vm.ToValue(ok && b)
}

func (a *Agent) prompt(call goja.FunctionCall) goja.Value {
	def := ""
	if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		def = arg.String()
	}
	v, ok := a.interact(protocol.InteractionPrompt, a.text(call.Argument(0)), def)
	s, isString := v.(string)
	if !ok || !isString {
		return goja.Null()
	}
	return a.vm.ToValue(s)
}

// setVar reports a variable update. Structures cross as descriptors; other
// values are exported copies.
func (a *Agent) setVar(call goja.FunctionCall) goja.Value {
	if a.halting {
		return goja.Undefined()
	}
	name := call.Argument(0).String()
	value := call.Argument(1)
	if obj, ok := value.(*goja.Object); ok {
		if s, tracked := a.structures[obj]; tracked && s.Descriptor().Name == "" {
			s.SetName(name)
		}
	}
	var source any
	if arg := call.Argument(2); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		source = arg.String()
	}
	a.notify(protocol.CmdSetVar, name, a.export(value), source)
	return goja.Undefined()
}

func (a *Agent) params(cmd protocol.Command) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		a.notify(cmd, a.paramPairs(call.Argument(0)))
		return goja.Undefined()
	}
}

// paramPairs converts [['!f.a', 'x'], ...] to protocol pairs.
func (a *Agent) paramPairs(v goja.Value) []protocol.ParamPair {
	var raw [][]string
	if err := a.vm.ExportTo(v, &raw); err != nil {
		a.logger.Warn("malformed parameter pairs", zap.Error(err))
		return nil
	}
	pairs := make([]protocol.ParamPair, 0, len(raw))
	for _, p := range raw {
		if len(p) != 2 {
			continue
		}
		pairs = append(pairs, protocol.ParamPair{Param: p[0], Arg: p[1]})
	}
	return pairs
}

// newConsole builds the console object snippets see. Its methods write to
// the agent logger.
func (a *Agent) newConsole() *goja.Object {
	console := a.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		err := console.Set(level, func(call goja.FunctionCall) goja.Value {
			a.logger.Debug("console", zap.String("level", level), zap.String("text", a.join(call.Arguments)))
			return goja.Undefined()
		})
		if err != nil {
			a.logger.Warn("console method not set", zap.String("level", level), zap.Error(err))
		}
	}
	return console
}

// hookConsole forwards console.log output to the host for one run. The
// returned func restores the previous logger.
func (a *Agent) hookConsole() (restore func()) {
	prev := a.console.Get("log")
	prevFn, _ := goja.AssertFunction(prev)

	err := a.console.Set("log", func(call goja.FunctionCall) goja.Value {
		a.notify(protocol.CmdOnConsoleLog, a.join(call.Arguments))
		if prevFn != nil {
			if _, err := prevFn(a.console, call.Arguments...); err != nil {
				panic(err)
			}
		}
		return goja.Undefined()
	})
	if err != nil {
		a.logger.Warn("console.log not hooked", zap.Error(err))
	}

	return func() {
		if err := a.console.Set("log", prev); err != nil {
			a.logger.Warn("console.log not restored", zap.Error(err))
		}
	}
}

func (a *Agent) join(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = a.text(arg)
	}
	return strings.Join(parts, " ")
}

// text renders a value for messages: strings verbatim, everything else
// formatted.
func (a *Agent) text(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if _, ok := v.(*goja.Object); !ok {
		return v.String()
	}
	return observable.Format(a.export(v))
}
