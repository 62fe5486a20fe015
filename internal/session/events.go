package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/stepviz/internal/graph"
	"github.com/dshills/stepviz/internal/instrument"
	"github.com/dshills/stepviz/internal/observable"
	"github.com/dshills/stepviz/internal/protocol"
	"github.com/dshills/stepviz/internal/scope"
)

type frame = scope.Frame[*observable.Observable]

// HandleEvent applies one sandbox event to the runtime model and publishes
// the result. A protocol violation stops the run.
func (s *Session) HandleEvent(msg protocol.Message) error {
	if err := s.handle(msg); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

func (s *Session) handle(msg protocol.Message) error {
	switch msg.Cmd {
	case protocol.CmdMarkcl, protocol.CmdForceMarkcl:
		line, err := protocol.Param[int](msg, 0)
		if err != nil {
			return err
		}
		s.bus.Markcl(line)

	case protocol.CmdExecutionFinished:
		s.stateMu.RLock()
		done := s.done
		s.stateMu.RUnlock()
		s.mu.Lock()
		s.closeFrames()
		s.mu.Unlock()
		s.setState(StateReplayEnded)
		s.logger.Info("replay finished")
		s.bus.OnExecutionFinished()
		s.finish(done, StateReplayEnded)

	case protocol.CmdUserInteractionRequest:
		kind, err := protocol.Param[protocol.InteractionKind](msg, 0)
		if err != nil {
			return err
		}
		title, err := protocol.Param[string](msg, 1)
		if err != nil {
			return err
		}
		def, _, err := protocol.OptionalParam[string](msg, 2)
		if err != nil {
			return err
		}
		s.setState(StateWaiting)
		s.bus.OnUserInteractionRequest(kind, title, def)

	case protocol.CmdOnConsoleLog:
		text, err := protocol.Param[string](msg, 0)
		if err != nil {
			return err
		}
		s.bus.OnTraceMessage(text)

	case protocol.CmdOnExceptionRaised:
		text, err := protocol.Param[string](msg, 0)
		if err != nil {
			return err
		}
		s.bus.OnExceptionMessage(true, text)

	case protocol.CmdStartScope, protocol.CmdEndScope, protocol.CmdSetVar,
		protocol.CmdPushParams, protocol.CmdPopParams:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.handleScope(msg)

	case protocol.CmdOnAddNode, protocol.CmdOnRemoveNode, protocol.CmdOnAddEdge,
		protocol.CmdOnRemoveEdge, protocol.CmdOnAccessNode:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.handleStructure(msg)

	default:
		return &protocol.ProtocolError{Op: msg.Cmd.String(), Err: protocol.ErrUnknownCommand}
	}
	return nil
}

func (s *Session) handleScope(msg protocol.Message) error {
	switch msg.Cmd {
	case protocol.CmdStartScope:
		name, err := protocol.Param[string](msg, 0)
		if err != nil {
			return err
		}
		f := s.resolver.Start(name)
		s.bus.OnEnterScopeVariable(f.Path, nil)

	case protocol.CmdEndScope:
		name, err := protocol.Param[string](msg, 0)
		if err != nil {
			return err
		}
		return s.endScope(name)

	case protocol.CmdSetVar:
		return s.setVar(msg)

	case protocol.CmdPushParams:
		pairs, err := protocol.Param[[]protocol.ParamPair](msg, 0)
		if err != nil {
			return err
		}
		return s.pushParams(pairs)

	case protocol.CmdPopParams:
		pairs, err := protocol.Param[[]protocol.ParamPair](msg, 0)
		if err != nil {
			return err
		}
		s.popParams(pairs)
	}
	return nil
}

// endScope announces the exit of every observable of the top frame and of
// the frame itself, then pops it.
func (s *Session) endScope(name string) error {
	top := s.resolver.Top()
	if top == nil || top.Name != scope.FunctionScope(name) {
		_, err := s.resolver.End(name)
		return err
	}
	vars := top.Vars()
	for i := len(vars) - 1; i >= 0; i-- {
		s.bus.OnExitScopeVariable(top.Path, vars[i])
	}
	s.bus.OnExitScopeVariable(top.Path, nil)

	if _, err := s.resolver.End(name); err != nil {
		return err
	}
	for _, o := range vars {
		if o.Kind() != observable.KindGraph {
			o.Empty()
		}
	}
	s.aliases.DropFrame(top.Path)
	return nil
}

// closeFrames ends the frames a halted run left open, innermost first, so
// every entered frame and variable is exited before the run finishes.
func (s *Session) closeFrames() {
	for top := s.resolver.Top(); top != nil; top = s.resolver.Top() {
		s.logger.Debug("closing open frame", zap.String("frame", top.Path))
		if err := s.endScope(top.Name); err != nil {
			s.logger.Warn("close open frame", zap.String("frame", top.Path), zap.Error(err))
			s.resolver.Reset()
			s.aliases.Reset()
			return
		}
	}
}

// pushParams links each callee parameter to the caller argument it was
// bound to. The callee frame is not open yet, so its path is derived from
// the current one.
func (s *Session) pushParams(pairs []protocol.ParamPair) error {
	if s.resolver.Top() == nil {
		return &protocol.ProtocolError{Op: protocol.CmdPushParams.String(), Err: ErrNoScope}
	}
	for _, p := range pairs {
		from := s.paramKey(p.Param)
		to := s.locate(p.Arg).Key(p.Arg)
		s.aliases.Link(from, to)
		s.logger.Debug("param linked", zap.Stringer("param", from), zap.Stringer("arg", to))
	}
	return nil
}

func (s *Session) popParams(pairs []protocol.ParamPair) {
	for _, p := range pairs {
		s.aliases.Unlink(s.paramKey(p.Param))
	}
}

// paramKey qualifies "!f.a" by the current frame path.
func (s *Session) paramKey(param string) scope.Key {
	k := scope.ParseKey(param)
	if k.Scope == "" {
		return s.resolver.Attach(k.Name)
	}
	return scope.Key{Scope: s.resolver.Current() + "." + k.Scope, Name: k.Name}
}

// locate returns the frame a name belongs to: the innermost visible frame
// that already holds it or statically declares it, else the outermost
// visible frame.
func (s *Session) locate(name string) *frame {
	visible := s.resolver.Visible()
	for _, f := range visible {
		if _, ok := f.Get(name); ok {
			return f
		}
		if _, ok := s.result.Lookup(instrument.StaticScope(f.Path), name); ok {
			return f
		}
	}
	return visible[len(visible)-1]
}

func (s *Session) setVar(msg protocol.Message) error {
	name, err := protocol.Param[string](msg, 0)
	if err != nil {
		return err
	}
	if len(msg.Params) < 2 {
		return &protocol.ProtocolError{Op: msg.Cmd.String(), Err: fmt.Errorf("%w: missing value", protocol.ErrMalformedMessage)}
	}
	value := msg.Params[1]
	source, _, err := protocol.OptionalParam[string](msg, 2)
	if err != nil {
		return err
	}

	// Tree nodes are displayed through their tree.
	if _, ok := value.(graph.Node); ok {
		return nil
	}
	if s.resolver.Top() == nil {
		return &protocol.ProtocolError{Op: msg.Cmd.String(), Err: ErrNoScope}
	}

	f := s.locate(name)
	if observable.KindOf(value).IsCompound() {
		key := f.Key(name)
		if source != "" && source != name {
			s.aliases.Link(key, s.locate(source).Key(source))
		}
		if dst := s.aliases.Resolve(key); dst != key {
			if target := s.resolver.Frame(dst.Scope); target != nil {
				s.reference(f, name, dst)
				s.assign(target, dst.Name, value)
				return nil
			}
			s.logger.Debug("alias target gone", zap.Stringer("key", key), zap.Stringer("target", dst))
		}
	}
	s.assign(f, name, value)
	return nil
}

// reference makes name in f stand for dst.
func (s *Session) reference(f *frame, name string, dst scope.Key) {
	if o, ok := f.Get(name); ok && o.Kind() != observable.KindGraph {
		o.SetReference(dst.String())
		return
	}
	s.add(f, observable.NewReference(name, dst.String()))
}

// assign updates the observable for name in f, creating it on first use.
// A structure replacing another value gets a fresh observable.
func (s *Session) assign(f *frame, name string, value any) {
	d, isGraph := value.(graph.Descriptor)
	o, ok := f.Get(name)
	if ok {
		cur, bound := o.Descriptor()
		if isGraph == bound && (!isGraph || cur.ID == d.ID) {
			o.SetValue(value)
			return
		}
	}

	if isGraph {
		st := s.structure(d)
		o = observable.NewGraph(name, st.mirror)
		st.obs = o
	} else {
		decl, _ := s.result.Lookup(instrument.StaticScope(f.Path), name)
		o = observable.New(name, value, observable.WithBinary(decl.IsBinaryLiteral))
	}
	s.add(f, o)
}

func (s *Session) add(f *frame, o *observable.Observable) {
	f.Add(o)
	s.logger.Debug("observable created",
		zap.String("scope", f.Path), zap.String("name", o.Name()), zap.Stringer("kind", o.Kind()))
	s.bus.OnEnterScopeVariable(f.Path, o)
}

// structure returns the mirror of d, creating it on first sight.
func (s *Session) structure(d graph.Descriptor) *structure {
	if st, ok := s.structures[d.ID]; ok {
		return st
	}
	st := &structure{mirror: graph.NewMirror(d)}
	s.structures[d.ID] = st
	return st
}

func (s *Session) handleStructure(msg protocol.Message) error {
	d, err := protocol.Param[graph.Descriptor](msg, 0)
	if err != nil {
		return err
	}
	st := s.structure(d)
	op := func(err error) error {
		if err == nil {
			return nil
		}
		return &protocol.ProtocolError{Op: msg.Cmd.String(), Err: err}
	}

	switch msg.Cmd {
	case protocol.CmdOnAddNode:
		n, err := protocol.Param[graph.Node](msg, 1)
		if err != nil {
			return err
		}
		parent, hasParent, err := protocol.OptionalParam[graph.Node](msg, 2)
		if err != nil {
			return err
		}
		side, hasSide, err := protocol.OptionalParam[graph.ChildSide](msg, 3)
		if err != nil {
			return err
		}
		var pp *graph.Node
		var ps *graph.ChildSide
		if hasParent {
			pp = &parent
		}
		if hasSide {
			ps = &side
		}
		if err := st.mirror.AddNode(n, pp, ps); err != nil {
			return op(err)
		}
		s.bus.OnAddNode(st.obs, n, pp, ps)

	case protocol.CmdOnRemoveNode:
		n, err := protocol.Param[graph.Node](msg, 1)
		if err != nil {
			return err
		}
		if err := st.mirror.RemoveNode(n); err != nil {
			return op(err)
		}
		s.bus.OnRemoveNode(st.obs, n)

	case protocol.CmdOnAddEdge, protocol.CmdOnRemoveEdge:
		src, err := protocol.Param[graph.Node](msg, 1)
		if err != nil {
			return err
		}
		dst, err := protocol.Param[graph.Node](msg, 2)
		if err != nil {
			return err
		}
		if msg.Cmd == protocol.CmdOnAddEdge {
			if err := st.mirror.AddEdge(src, dst); err != nil {
				return op(err)
			}
			s.bus.OnAddEdge(st.obs, src, dst)
			return nil
		}
		if err := st.mirror.RemoveEdge(src, dst); err != nil {
			return op(err)
		}
		s.bus.OnRemoveEdge(st.obs, src, dst)

	case protocol.CmdOnAccessNode:
		n, err := protocol.Param[graph.Node](msg, 1)
		if err != nil {
			return err
		}
		access, err := protocol.Param[graph.AccessType](msg, 2)
		if err != nil {
			return err
		}
		s.bus.OnAccessNode(st.obs, n, access)
	}
	return nil
}
