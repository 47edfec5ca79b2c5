package tree

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue/token"
)

// ValidationError reports a structural problem in a tree definition.
type ValidationError struct {
	Code    string
	Tree    string    // Tree name
	Path    string    // Node path within the tree, e.g. "children[2].child"
	Message string    // Human-readable description
	Pos     token.Pos // Position of the tree, for CUE documents
}

func (e *ValidationError) Error() string {
	loc := e.Tree
	if e.Path != "" {
		loc += "." + e.Path
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, loc, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, loc, e.Message)
}

// Validation error codes.
const (
	ErrCodeUnknownKind  = "E101" // Kind is not recognised
	ErrCodeMissingField = "E102" // Required field is absent
	ErrCodeUnusedField  = "E103" // Field does not apply to the kind
	ErrCodeNegativeTime = "E104" // Delay or floor below zero
	ErrCodeUnknownRef   = "E105" // Reference to an undefined tree
	ErrCodeRefCycle     = "E106" // References form a cycle
	ErrCodeMissingRoot  = "E107" // Root tree is not defined
	ErrCodeInvalidLimit = "E108" // Limit without a counter, or below zero
)

// IsValidationError reports whether err is a ValidationError with the given code.
func IsValidationError(err error, code string) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code == code
	}
	return false
}

// shape describes which fields a kind accepts.
type shape struct {
	children bool
	child    bool // child is required
	work     bool
	branches bool
	delay    bool
	floor    bool
	result   bool
	flag     bool // flag is required
	function bool // result, flag, action, counter and limit, all optional
	counter  bool
	ref      bool
}

var shapes = map[string]shape{
	KindFunction:         {function: true},
	KindSleep:            {delay: true},
	KindSoftSleep:        {delay: true},
	KindSequence:         {children: true},
	KindAll:              {children: true},
	KindGenerator:        {children: true},
	KindMustRun:          {child: true},
	KindRepeat:           {child: true},
	KindRememberSoftStop: {child: true},
	KindResult:           {child: true},
	KindRunChild:         {child: true},
	KindMinimumTime:      {child: true, floor: true},
	KindOverrideResult:   {child: true, result: true},
	KindWithFinally:      {child: true, counter: true},
	KindCallback:         {child: true, counter: true},
	KindConditional:      {flag: true, branches: true},
	KindCriticalSection:  {work: true},
	KindBusyWait:         {flag: true},
	KindRef:              {ref: true},
}

// Kinds returns every supported node kind, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(shapes))
	for k := range shapes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Validate checks every tree in doc and returns all problems found.
// An empty result means the document can be built.
func Validate(doc *Document) []error {
	var errs []error

	if _, ok := doc.Trees[doc.Entry()]; !ok {
		errs = append(errs, &ValidationError{
			Code:    ErrCodeMissingRoot,
			Tree:    doc.Entry(),
			Message: "root tree is not defined",
		})
	}

	for _, name := range doc.Names() {
		node := doc.Trees[name]
		v := &validator{doc: doc, tree: name, pos: doc.Pos(name)}
		v.node(&node, "")
		errs = append(errs, v.errs...)
	}

	for _, cycle := range FindRefCycles(doc) {
		errs = append(errs, &ValidationError{
			Code:    ErrCodeRefCycle,
			Tree:    cycle[0],
			Message: "reference cycle: " + strings.Join(cycle, " -> "),
			Pos:     doc.Pos(cycle[0]),
		})
	}

	return errs
}

type validator struct {
	doc  *Document
	tree string
	pos  token.Pos
	errs []error
}

func (v *validator) fail(code, path, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{
		Code:    code,
		Tree:    v.tree,
		Path:    path,
		Message: fmt.Sprintf(format, args...),
		Pos:     v.pos,
	})
}

func join(path, label string) string {
	if path == "" {
		return label
	}
	return path + "." + label
}

func (v *validator) node(n *Node, path string) {
	sh, ok := shapes[n.Kind]
	if !ok {
		if n.Kind == "" {
			v.fail(ErrCodeMissingField, path, "kind is required")
		} else {
			v.fail(ErrCodeUnknownKind, path, "unknown kind %q", n.Kind)
		}
		return
	}

	where := path
	if where == "" {
		where = "(root)"
	}

	// Structural slots.
	if len(n.Children) > 0 && !sh.children {
		v.fail(ErrCodeUnusedField, path, "%s does not take children", n.Kind)
	}
	if sh.child && n.Child == nil {
		v.fail(ErrCodeMissingField, path, "%s requires a child", n.Kind)
	}
	if !sh.child && n.Child != nil {
		v.fail(ErrCodeUnusedField, path, "%s does not take a child", n.Kind)
	}
	if sh.work && n.Cleanup == nil {
		v.fail(ErrCodeMissingField, path, "%s requires cleanup", n.Kind)
	}
	if !sh.work && (n.Work != nil || n.Cleanup != nil) {
		v.fail(ErrCodeUnusedField, path, "%s does not take work or cleanup", n.Kind)
	}
	if !sh.branches && (n.Then != nil || n.Else != nil) {
		v.fail(ErrCodeUnusedField, path, "%s does not take then or else", n.Kind)
	}

	// Scalars.
	if n.Delay < 0 || n.Floor < 0 {
		v.fail(ErrCodeNegativeTime, path, "durations must not be negative")
	}
	if n.Delay != 0 && !sh.delay {
		v.fail(ErrCodeUnusedField, path, "%s does not take a delay", n.Kind)
	}
	if n.Floor != 0 && !sh.floor {
		v.fail(ErrCodeUnusedField, path, "%s does not take a floor", n.Kind)
	}
	if sh.result && n.Result == nil {
		v.fail(ErrCodeMissingField, path, "%s requires result", n.Kind)
	}
	if n.Result != nil && !sh.result && !sh.function {
		v.fail(ErrCodeUnusedField, path, "%s does not take result", n.Kind)
	}
	if sh.flag && n.Flag == "" {
		v.fail(ErrCodeMissingField, path, "%s requires flag", n.Kind)
	}
	if n.Flag != "" && !sh.flag && !sh.function {
		v.fail(ErrCodeUnusedField, path, "%s does not take flag", n.Kind)
	}
	if n.Action != "" && !sh.function {
		v.fail(ErrCodeUnusedField, path, "%s does not take action", n.Kind)
	}
	if n.Counter != "" && !sh.function && !sh.counter {
		v.fail(ErrCodeUnusedField, path, "%s does not take counter", n.Kind)
	}
	if n.Limit != 0 {
		switch {
		case !sh.function:
			v.fail(ErrCodeUnusedField, path, "%s does not take limit", n.Kind)
		case n.Limit < 0:
			v.fail(ErrCodeInvalidLimit, path, "limit must not be negative")
		case n.Counter == "":
			v.fail(ErrCodeInvalidLimit, path, "limit requires counter")
		}
	}
	if sh.ref {
		if n.Ref == "" {
			v.fail(ErrCodeMissingField, path, "ref requires a tree name")
		} else if _, ok := v.doc.Trees[n.Ref]; !ok {
			v.fail(ErrCodeUnknownRef, path, "%s references undefined tree %q", where, n.Ref)
		}
	} else if n.Ref != "" {
		v.fail(ErrCodeUnusedField, path, "%s does not take ref", n.Kind)
	}

	for i := range n.Children {
		v.node(&n.Children[i], join(path, fmt.Sprintf("children[%d]", i)))
	}
	for _, s := range n.slots() {
		v.node(s.node, join(path, s.label))
	}
}

// refGraph maps tree name to the trees it references.
type refGraph map[string][]string

func buildRefGraph(doc *Document) refGraph {
	graph := make(refGraph)
	for _, name := range doc.Names() {
		node := doc.Trees[name]
		graph[name] = collectRefs(&node, nil)
	}
	return graph
}

func collectRefs(n *Node, refs []string) []string {
	if n.Kind == KindRef && n.Ref != "" {
		refs = append(refs, n.Ref)
	}
	for i := range n.Children {
		refs = collectRefs(&n.Children[i], refs)
	}
	for _, s := range n.slots() {
		refs = collectRefs(s.node, refs)
	}
	return refs
}

// FindRefCycles returns every reference cycle in doc as a path that starts
// and ends at the same tree, e.g. ["a", "b", "a"].
//
// The algorithm:
//  1. Build the tree -> referenced trees graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each component with more than one tree, or with a self-reference
func FindRefCycles(doc *Document) [][]string {
	graph := buildRefGraph(doc)

	var cycles [][]string
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		cycles = append(cycles, cyclePath(scc, graph))
	}

	sort.Slice(cycles, func(i, j int) bool {
		return strings.Join(cycles[i], ",") < strings.Join(cycles[j], ",")
	})
	return cycles
}

func hasSelfLoop(node string, graph refGraph) bool {
	for _, next := range graph[node] {
		if next == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph refGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cyclePath walks a component from its smallest member back to itself.
func cyclePath(scc []string, graph refGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	sorted := append([]string(nil), scc...)
	sort.Strings(sorted)

	start := sorted[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start

	for {
		next := ""
		for _, w := range graph[current] {
			if w == start || (members[w] && !visited[w]) {
				next = w
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
