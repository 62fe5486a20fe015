package instrument

import (
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"

	"github.com/dshills/stepviz/internal/protocol"
)

// fnInfo describes a snippet function callers can bind parameters to.
type fnInfo struct {
	scope  string
	params []string
}

// reference is a use of an identifier that re-emits setVar if it resolves
// to a tracked declaration once the walk is complete.
type reference struct {
	scope *staticScope
	name  string
	at    int
	head  bool
	depth int
	seq   int
}

// callRef is a call to a possibly snippet-defined function.
type callRef struct {
	scope      *staticScope
	callee     string
	args       []string
	start, end int

	stmtStart, stmtEnd int
	pop                bool
	depth              int
	seqHead, seqTail   int
}

// stmtCtx carries per-statement walk state.
type stmtCtx struct {
	scope      *staticScope
	depth      int
	start, end int
	holes      []span

	// refs enables setVar tails for mutated identifiers; calls enables
	// parameter bindings; pop closes those bindings after the statement.
	refs  bool
	calls bool
	pop   bool
}

// walker is a single pass over the program collecting declarations,
// insertions and no-mark zones. All offsets are 0-based byte offsets into
// the source.
type walker struct {
	src   string
	sc    *scanner
	lines lineIndex

	scopes  []*staticScope
	spans   []Scope
	decls   []*VariableDeclaration
	declIdx map[DeclKey]*VariableDeclaration
	funcs   map[string]fnInfo

	ins        []insertion
	seq        int
	zones      []span
	stmtStarts map[int]int
	forced     map[int]bool
	refs       []reference
	calls      []callRef
	params     []ParamBinding
}

func newWalker(src string) *walker {
	return &walker{
		src:        src,
		sc:         &scanner{src: src, classes: classify(src)},
		lines:      newLineIndex(src),
		declIdx:    make(map[DeclKey]*VariableDeclaration),
		funcs:      make(map[string]fnInfo),
		stmtStarts: make(map[int]int),
		forced:     make(map[int]bool),
	}
}

func (w *walker) nextSeq() int {
	w.seq++
	return w.seq
}

func (w *walker) head(at int, text string, depth int) {
	w.ins = append(w.ins, insertion{at: at, depth: depth, seq: w.nextSeq(), text: text})
}

func (w *walker) tail(at int, text string, depth int) {
	w.ins = append(w.ins, insertion{at: at, tail: true, depth: depth, seq: w.nextSeq(), text: text})
}

// wrap inserts an opening and closing pair, merged into one insertion when
// both land on the same offset.
func (w *walker) wrap(open, close int, head, tail string, depth int) {
	if open >= close {
		w.head(open, head+tail, depth)
		return
	}
	w.head(open, head, depth)
	w.tail(close, tail, depth)
}

func (w *walker) newScope(path string, kind ScopeKind, parent *staticScope, start, end int) *staticScope {
	s := &staticScope{path: path, kind: kind, parent: parent, decls: make(map[string]*VariableDeclaration)}
	w.scopes = append(w.scopes, s)
	w.spans = append(w.spans, Scope{Path: path, Kind: kind, Start: start, End: end})
	return s
}

func (w *walker) localScope(parent *staticScope, start, end int) *staticScope {
	return w.newScope(parent.path+"."+localName, ScopeLocal, parent, start, end)
}

func (w *walker) declare(sc *staticScope, name string, kind DeclKind, site int, source string, binary bool) *VariableDeclaration {
	key := DeclKey{Scope: sc.path, Name: name}
	d, ok := w.declIdx[key]
	if !ok {
		d = &VariableDeclaration{Scope: sc.path, Name: name, Kind: kind}
		w.declIdx[key] = d
		w.decls = append(w.decls, d)
	}
	if d.Source == "" {
		d.Source = source
	}
	d.IsBinaryLiteral = d.IsBinaryLiteral || binary
	d.Sites = append(d.Sites, site)
	sc.decls[name] = d
	return d
}

func (w *walker) zone(start, end int, holes []span) {
	w.zones = append(w.zones, subtract(start+1, end-1, holes)...)
}

func (w *walker) noteStart(at, depth int) {
	if d, ok := w.stmtStarts[at]; !ok || depth > d {
		w.stmtStarts[at] = depth
	}
}

func (w *walker) line(at int) int {
	return w.lines.line(at)
}

// start returns the 0-based start of a statement.
func (w *walker) start(stmt ast.Statement) int {
	switch st := stmt.(type) {
	case *ast.ExpressionStatement:
		return w.sc.statementStart(int(st.Idx0()) - 1)
	case *ast.IfStatement:
		// The parser leaves IfStatement.If unset.
		return w.sc.keywordStart(w.sc.statementStart(int(st.Test.Idx0())-1), "if")
	}
	return int(stmt.Idx0()) - 1
}

// end returns the 0-based exclusive end of a statement, including its
// terminating semicolon.
func (w *walker) end(stmt ast.Statement) int {
	switch st := stmt.(type) {
	case *ast.IfStatement:
		if st.Alternate != nil {
			return w.end(st.Alternate)
		}
		return w.end(st.Consequent)
	case *ast.ForStatement:
		return w.end(st.Body)
	case *ast.ForInStatement:
		return w.end(st.Body)
	case *ast.ForOfStatement:
		return w.end(st.Body)
	case *ast.WhileStatement:
		return w.end(st.Body)
	case *ast.WithStatement:
		return w.end(st.Body)
	case *ast.LabelledStatement:
		return w.end(st.Statement)
	case *ast.DoWhileStatement:
		return w.sc.doWhileEnd(w.end(st.Body))
	case *ast.BlockStatement, *ast.SwitchStatement, *ast.TryStatement,
		*ast.FunctionDeclaration, *ast.ClassDeclaration, *ast.EmptyStatement:
		return int(stmt.Idx1()) - 1
	default:
		return w.sc.statementEnd(int(stmt.Idx1()) - 1)
	}
}

func braces(b *ast.BlockStatement) (lb, rb int) {
	return int(b.LeftBrace) - 1, int(b.RightBrace) - 1
}

// program walks the top level inside the global scope.
func (w *walker) program(prog *ast.Program) {
	gs := w.newScope(globalName, ScopeGlobal, nil, 0, len(w.src))
	if len(prog.Body) == 0 {
		w.head(0, scopeHead(globalName, "")+scopeTail(globalName), 0)
		return
	}

	last := w.end(prog.Body[len(prog.Body)-1])
	w.head(0, scopeHead(globalName, ""), 0)
	w.tail(last, forceMarkText(w.line(last-1))+scopeTail(globalName), 0)
	w.statements(prog.Body, gs, 2)
}

func (w *walker) statements(list []ast.Statement, sc *staticScope, depth int) {
	for _, stmt := range list {
		w.statement(stmt, sc, depth)
	}
}

func (w *walker) statement(stmt ast.Statement, sc *staticScope, depth int) {
	start, end := w.start(stmt), w.end(stmt)
	w.noteStart(start, depth)
	c := &stmtCtx{scope: sc, depth: depth, start: start, end: end}

	switch st := stmt.(type) {
	case *ast.ExpressionStatement:
		c.refs, c.calls, c.pop = true, true, true
		w.expr(st.Expression, c, "")

	case *ast.VariableStatement:
		c.refs, c.calls, c.pop = true, true, true
		w.declarations(st.List, DeclVar, c)

	case *ast.LexicalDeclaration:
		c.refs, c.calls, c.pop = true, true, true
		w.declarations(st.List, DeclLet, c)

	case *ast.ReturnStatement:
		c.calls = true
		w.expr(st.Argument, c, "")

	case *ast.ThrowStatement:
		w.expr(st.Argument, c, "")

	case *ast.FunctionDeclaration:
		name := "lambda"
		if st.Function.Name != nil {
			name = string(st.Function.Name.Name)
		}
		w.function(st.Function.ParameterList, st.Function.Body, name, "", c)

	case *ast.BlockStatement:
		c.holes = append(c.holes, w.localBlock(st, sc, depth, ""))

	case *ast.IfStatement:
		w.expr(st.Test, c, "")
		w.branch(st.Consequent, "", c)
		if alt, ok := st.Alternate.(*ast.IfStatement); ok {
			as, ae := w.start(alt), w.end(alt)
			c.holes = append(c.holes, span{as + 1, ae - 1})
			w.statement(alt, sc, depth+2)
		} else if st.Alternate != nil {
			w.branch(st.Alternate, "else", c)
		}

	case *ast.ForStatement, *ast.ForInStatement, *ast.ForOfStatement,
		*ast.WhileStatement, *ast.DoWhileStatement:
		ls := w.localScope(sc, start, end)
		w.wrap(start, end, scopeHead(localName, ""), scopeTail(localName), depth)
		c.scope = ls
		w.loop(stmt, c)

	case *ast.LabelledStatement:
		inner := st.Statement
		is := w.start(inner)
		c.holes = append(c.holes, span{is + 1, end - 1})
		if isLoop(inner) {
			ls := w.localScope(sc, start, end)
			w.wrap(start, end, scopeHead(localName, ""), scopeTail(localName), depth)
			w.noteStart(is, depth+2)
			ic := &stmtCtx{scope: ls, depth: depth + 2, start: is, end: end}
			w.loop(inner, ic)
			w.zone(is, end, ic.holes)
		} else {
			w.statement(inner, sc, depth+2)
		}

	case *ast.SwitchStatement:
		ls := w.localScope(sc, start, end)
		w.wrap(start, end, scopeHead(localName, ""), scopeTail(localName), depth)
		c.scope = ls
		w.expr(st.Discriminant, c, "")
		for _, cs := range st.Body {
			w.expr(cs.Test, c, "")
			if len(cs.Consequent) == 0 {
				continue
			}
			fs := w.start(cs.Consequent[0])
			le := w.end(cs.Consequent[len(cs.Consequent)-1])
			w.forced[fs] = true
			w.head(fs, forceMarkText(w.line(fs)), depth+2)
			c.holes = append(c.holes, span{fs, le - 1})
			w.statements(cs.Consequent, ls, depth+2)
		}

	case *ast.TryStatement:
		c.holes = append(c.holes, w.localBlock(st.Body, sc, depth, ""))
		if st.Catch != nil {
			param := ""
			if id, ok := st.Catch.Parameter.(*ast.Identifier); ok {
				param = string(id.Name)
			}
			c.holes = append(c.holes, w.localBlock(st.Catch.Body, sc, depth, param))
		}
		if st.Finally != nil {
			c.holes = append(c.holes, w.localBlock(st.Finally, sc, depth, ""))
		}
	}

	w.zone(start, end, c.holes)
}

func isLoop(stmt ast.Statement) bool {
	switch stmt.(type) {
	case *ast.ForStatement, *ast.ForInStatement, *ast.ForOfStatement,
		*ast.WhileStatement, *ast.DoWhileStatement:
		return true
	}
	return false
}

// localBlock opens a local scope for a brace-delimited block and returns
// the block interior as a hole. A non-empty param is declared in the new
// scope, as for catch clauses.
func (w *walker) localBlock(b *ast.BlockStatement, parent *staticScope, depth int, param string) span {
	lb, rb := braces(b)
	ls := w.localScope(parent, lb, rb+1)

	extra := ""
	if param != "" {
		w.declare(ls, param, DeclLet, lb+1, "", false)
		extra = setVarText(param, "")
	}
	w.wrap(lb+1, rb, scopeHead(localName, extra), scopeTail(localName), depth+1)
	w.statements(b.List, ls, depth+2)
	return span{lb + 1, rb - 1}
}

// branch walks an if or else branch. Block branches open a local scope;
// other branches get a synthetic brace pair so inserted calls stay inside
// the branch.
func (w *walker) branch(body ast.Statement, keyword string, c *stmtCtx) {
	if block, ok := body.(*ast.BlockStatement); ok {
		c.holes = append(c.holes, w.localBlock(block, c.scope, c.depth, ""))
		return
	}
	bs, be := w.start(body), w.end(body)
	he := w.sc.headerEnd(bs, keyword)
	w.head(he, "{", c.depth+1)
	w.tail(be, "}", c.depth+1)
	c.holes = append(c.holes, span{bs, be - 1})
	w.statement(body, c.scope, c.depth+2)
}

// loopVar is a variable bound by a loop header.
type loopVar struct {
	name string
	kind DeclKind
}

// loop walks a loop whose local scope is c.scope. The body always gets a
// synthetic brace pair right after the header; its opening text forces a
// line mark and reports the loop variables on every iteration.
func (w *walker) loop(stmt ast.Statement, c *stmtCtx) {
	var (
		body     ast.Statement
		keyword  string
		vars     []loopVar
		assigned []string
	)
	hc := &stmtCtx{scope: c.scope, depth: c.depth}

	switch st := stmt.(type) {
	case *ast.ForStatement:
		body = st.Body
		switch init := st.Initializer.(type) {
		case *ast.ForLoopInitializerVarDeclList:
			vars = w.loopBindings(init.List, DeclVar, hc)
		case *ast.ForLoopInitializerLexicalDecl:
			vars = w.loopBindings(init.LexicalDeclaration.List, DeclLet, hc)
		case *ast.ForLoopInitializerExpression:
			assigned = append(assigned, mutatedRoots(init.Expression)...)
			w.expr(init.Expression, hc, "")
		}
		w.expr(st.Test, hc, "")
		assigned = append(assigned, mutatedRoots(st.Update)...)
		w.expr(st.Update, hc, "")
	case *ast.ForInStatement:
		body = st.Body
		vars, assigned = forInto(st.Into)
		w.expr(st.Source, hc, "")
	case *ast.ForOfStatement:
		body = st.Body
		vars, assigned = forInto(st.Into)
		w.expr(st.Source, hc, "")
	case *ast.WhileStatement:
		body = st.Body
		w.expr(st.Test, hc, "")
	case *ast.DoWhileStatement:
		body = st.Body
		keyword = "do"
		w.expr(st.Test, hc, "")
	}

	bs, be := w.start(body), w.end(body)
	he := w.sc.headerEnd(bs, keyword)

	var open strings.Builder
	open.WriteString("{")
	open.WriteString(forceMarkText(w.line(max(he-1, 0))))
	for _, v := range vars {
		target := c.scope
		if v.kind == DeclVar {
			target = c.scope.functionScope()
		}
		w.declare(target, v.name, v.kind, he, "", false)
		open.WriteString(setVarText(v.name, ""))
	}
	w.head(he, open.String(), c.depth+1)
	w.tail(be, "}", c.depth+1)

	// Identifiers assigned in the header are reported after the brace when
	// they resolve to tracked declarations.
	for _, name := range assigned {
		if declaresLoopVar(vars, name) {
			continue
		}
		w.refs = append(w.refs, reference{scope: c.scope, name: name, at: he, head: true, depth: c.depth + 1, seq: w.nextSeq()})
	}

	c.holes = append(c.holes, hc.holes...)
	if block, ok := body.(*ast.BlockStatement); ok {
		lb, rb := braces(block)
		c.holes = append(c.holes, span{lb + 1, rb - 1})
		w.statements(block.List, c.scope, c.depth+2)
		return
	}
	c.holes = append(c.holes, span{bs, be - 1})
	w.statement(body, c.scope, c.depth+2)
}

func declaresLoopVar(vars []loopVar, name string) bool {
	for _, v := range vars {
		if v.name == name {
			return true
		}
	}
	return false
}

// loopBindings walks for-init initializers and returns the bound names.
func (w *walker) loopBindings(list []*ast.Binding, kind DeclKind, hc *stmtCtx) []loopVar {
	var vars []loopVar
	for _, b := range list {
		w.expr(b.Initializer, hc, "")
		if id, ok := b.Target.(*ast.Identifier); ok {
			vars = append(vars, loopVar{name: string(id.Name), kind: kind})
		}
	}
	return vars
}

// forInto returns the variables a for-in/of header declares, or the
// existing identifier it assigns.
func forInto(into ast.ForInto) ([]loopVar, []string) {
	switch in := into.(type) {
	case *ast.ForIntoVar:
		if id, ok := in.Binding.Target.(*ast.Identifier); ok {
			return []loopVar{{name: string(id.Name), kind: DeclVar}}, nil
		}
	case *ast.ForDeclaration:
		if id, ok := in.Target.(*ast.Identifier); ok {
			return []loopVar{{name: string(id.Name), kind: DeclLet}}, nil
		}
	case *ast.ForIntoExpression:
		if id, ok := in.Expression.(*ast.Identifier); ok {
			return nil, []string{string(id.Name)}
		}
	}
	return nil, nil
}

// declarations handles var, let and const statements.
func (w *walker) declarations(list []*ast.Binding, kind DeclKind, c *stmtCtx) {
	target := c.scope
	if kind == DeclVar {
		target = c.scope.functionScope()
	}
	for _, b := range list {
		id, ok := b.Target.(*ast.Identifier)
		if !ok {
			w.expr(b.Initializer, c, "")
			continue
		}
		name := string(id.Name)
		if isFunctionValue(b.Initializer) {
			w.expr(b.Initializer, c, name)
			continue
		}

		source := ""
		if src, ok := b.Initializer.(*ast.Identifier); ok {
			source = string(src.Name)
		}
		binary := false
		if lit, ok := b.Initializer.(*ast.NumberLiteral); ok {
			binary = strings.HasPrefix(lit.Literal, "0b") || strings.HasPrefix(lit.Literal, "0B")
		}
		w.expr(b.Initializer, c, name)
		w.declare(target, name, kind, c.end, source, binary)
		w.tail(c.end, setVarText(name, source), c.depth)
	}
}

func isFunctionValue(e ast.Expression) bool {
	switch e.(type) {
	case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral, *ast.ClassLiteral:
		return true
	}
	return false
}

// function instruments a function body. bind is the declarator name for
// anonymous literals.
func (w *walker) function(params *ast.ParameterList, body *ast.BlockStatement, name, bind string, c *stmtCtx) {
	lb, rb := braces(body)
	scopeName := "!" + name
	fs := w.newScope(scopeName, ScopeFunction, c.scope, lb, rb+1)

	var (
		names []string
		extra strings.Builder
	)
	if params != nil {
		for _, p := range params.List {
			id, ok := p.Target.(*ast.Identifier)
			if !ok {
				names = append(names, "")
				continue
			}
			n := string(id.Name)
			names = append(names, n)
			w.declare(fs, n, DeclLet, lb+1, "", false)
			extra.WriteString(setVarText(n, ""))
		}
	}

	info := fnInfo{scope: scopeName, params: names}
	if name != "lambda" {
		w.funcs[name] = info
	}
	if bind != "" {
		w.funcs[bind] = info
	}

	w.wrap(lb+1, rb, scopeHead(scopeName, extra.String()), scopeTail(scopeName), c.depth+1)
	c.holes = append(c.holes, span{lb + 1, rb - 1})
	w.statements(body.List, fs, c.depth+2)
}

// expr visits an expression for nested functions, mutations and calls.
// bind names the declarator an anonymous function literal is assigned to.
func (w *walker) expr(e ast.Expression, c *stmtCtx, bind string) {
	switch x := e.(type) {
	case nil:
		return

	case *ast.FunctionLiteral:
		name := "lambda"
		if x.Name != nil {
			name = string(x.Name.Name)
		} else if bind != "" {
			name = bind
		}
		w.function(x.ParameterList, x.Body, name, bind, c)

	case *ast.ArrowFunctionLiteral:
		// Expression bodies are not instrumented.
		if body, ok := x.Body.(*ast.BlockStatement); ok {
			name := "lambda"
			if bind != "" {
				name = bind
			}
			w.function(x.ParameterList, body, name, bind, c)
		}

	case *ast.AssignExpression:
		w.mutation(x, c)
		w.expr(x.Left, c, "")
		w.expr(x.Right, c, "")

	case *ast.UnaryExpression:
		w.mutation(x, c)
		w.expr(x.Operand, c, "")

	case *ast.CallExpression:
		w.mutation(x, c)
		if id, ok := x.Callee.(*ast.Identifier); ok && c.calls {
			w.recordCall(string(id.Name), x, c)
		}
		w.expr(x.Callee, c, "")
		for _, a := range x.ArgumentList {
			w.expr(a, c, "")
		}

	case *ast.NewExpression:
		w.expr(x.Callee, c, "")
		for _, a := range x.ArgumentList {
			w.expr(a, c, "")
		}

	case *ast.BinaryExpression:
		w.expr(x.Left, c, "")
		w.expr(x.Right, c, "")

	case *ast.ConditionalExpression:
		w.expr(x.Test, c, "")
		w.expr(x.Consequent, c, "")
		w.expr(x.Alternate, c, "")

	case *ast.DotExpression:
		w.expr(x.Left, c, "")

	case *ast.BracketExpression:
		w.expr(x.Left, c, "")
		w.expr(x.Member, c, "")

	case *ast.ArrayLiteral:
		for _, v := range x.Value {
			w.expr(v, c, "")
		}

	case *ast.ObjectLiteral:
		for _, p := range x.Value {
			switch prop := p.(type) {
			case *ast.PropertyKeyed:
				w.expr(prop.Value, c, "")
			case *ast.PropertyShort:
				w.expr(prop.Initializer, c, "")
			case *ast.SpreadElement:
				w.expr(prop.Expression, c, "")
			}
		}

	case *ast.SequenceExpression:
		for _, s := range x.Sequence {
			w.expr(s, c, "")
		}

	case *ast.SpreadElement:
		w.expr(x.Expression, c, "")

	case *ast.TemplateLiteral:
		w.expr(x.Tag, c, "")
		for _, s := range x.Expressions {
			w.expr(s, c, "")
		}
	}
}

// mutation records a setVar tail for the root identifier changed by an
// assignment, update, delete or method call.
func (w *walker) mutation(e ast.Expression, c *stmtCtx) {
	if !c.refs {
		return
	}
	name := mutatedRoot(e)
	if name == "" {
		return
	}
	w.refs = append(w.refs, reference{scope: c.scope, name: name, at: c.end, depth: c.depth, seq: w.nextSeq()})
}

func mutatedRoot(e ast.Expression) string {
	switch x := e.(type) {
	case *ast.AssignExpression:
		return rootIdent(x.Left)
	case *ast.UnaryExpression:
		switch x.Operator {
		case token.INCREMENT, token.DECREMENT, token.DELETE:
			return rootIdent(x.Operand)
		}
	case *ast.CallExpression:
		switch x.Callee.(type) {
		case *ast.DotExpression, *ast.BracketExpression:
			return rootIdent(x.Callee)
		}
	}
	return ""
}

// mutatedRoots collects the roots mutated anywhere in a header expression.
func mutatedRoots(e ast.Expression) []string {
	var out []string
	var visit func(ast.Expression)
	visit = func(e ast.Expression) {
		if e == nil {
			return
		}
		if n := mutatedRoot(e); n != "" {
			out = append(out, n)
		}
		if seq, ok := e.(*ast.SequenceExpression); ok {
			for _, s := range seq.Sequence {
				visit(s)
			}
		}
	}
	visit(e)
	return out
}

// rootIdent returns the identifier at the base of a member chain.
func rootIdent(e ast.Expression) string {
	for {
		switch x := e.(type) {
		case *ast.Identifier:
			return string(x.Name)
		case *ast.DotExpression:
			e = x.Left
		case *ast.BracketExpression:
			e = x.Left
		default:
			return ""
		}
	}
}

func (w *walker) recordCall(callee string, x *ast.CallExpression, c *stmtCtx) {
	args := make([]string, len(x.ArgumentList))
	for i, a := range x.ArgumentList {
		if id, ok := a.(*ast.Identifier); ok {
			args[i] = string(id.Name)
		}
	}
	w.calls = append(w.calls, callRef{
		scope:     c.scope,
		callee:    callee,
		args:      args,
		start:     int(x.Idx0()) - 1,
		end:       int(x.Idx1()) - 1,
		stmtStart: c.start,
		stmtEnd:   c.end,
		pop:       c.pop,
		depth:     c.depth,
		seqHead:   w.nextSeq(),
		seqTail:   w.nextSeq(),
	})
}

// resolve turns deferred references and calls into insertions now that
// every declaration is known.
func (w *walker) resolve() {
	type siteKey struct {
		at   int
		name string
		head bool
	}
	seen := make(map[siteKey]bool)
	for _, r := range w.refs {
		d := r.scope.resolve(r.name)
		if d == nil {
			continue
		}
		k := siteKey{r.at, r.name, r.head}
		if seen[k] {
			continue
		}
		seen[k] = true
		d.Sites = append(d.Sites, r.at)
		w.ins = append(w.ins, insertion{at: r.at, tail: !r.head, depth: r.depth, seq: r.seq, text: setVarText(r.name, "")})
	}

	for _, cr := range w.calls {
		info, ok := w.funcs[cr.callee]
		if !ok {
			continue
		}
		var pairs []protocol.ParamPair
		for i, arg := range cr.args {
			if arg == "" || i >= len(info.params) || info.params[i] == "" {
				continue
			}
			if cr.scope.resolve(arg) == nil {
				continue
			}
			pairs = append(pairs, protocol.ParamPair{Param: info.scope + "." + info.params[i], Arg: arg})
		}
		if len(pairs) == 0 {
			continue
		}
		w.params = append(w.params, ParamBinding{CallStart: cr.start, CallEnd: cr.end, Callee: cr.callee, Pairs: pairs})
		w.ins = append(w.ins, insertion{at: cr.stmtStart, depth: cr.depth, seq: cr.seqHead, text: pushParamsText(pairs)})
		if cr.pop {
			w.ins = append(w.ins, insertion{at: cr.stmtEnd, tail: true, depth: cr.depth, seq: cr.seqTail, text: popParamsText(pairs)})
		}
	}
}

// markLines adds a line marker to every markable line whose entry point is
// outside the no-mark zones.
func (w *walker) markLines() {
	for i, ls := range w.lines {
		le := len(w.src)
		if i+1 < len(w.lines) {
			le = w.lines[i+1] - 1
		}
		q := w.sc.lineEntry(ls, le)
		if q < 0 || inZone(w.zones, q) || w.forced[q] {
			continue
		}
		depth, ok := w.stmtStarts[q]
		if !ok {
			depth = noDepth
		}
		w.ins = append(w.ins, insertion{at: q, depth: depth, mark: true, seq: w.nextSeq(), text: markText(i + 1)})
	}
}
