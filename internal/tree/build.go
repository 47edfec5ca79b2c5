package tree

import (
	"fmt"
	"sort"
	"time"

	"github.com/roach88/timeline/internal/timeline"
)

// Env holds the external state a tree reads and writes while it runs:
// named boolean flags (conditions and busy-wait predicates), named counters
// and registered actions.
//
// Env is not safe for concurrent use; it belongs to the timeline goroutine.
type Env struct {
	flags    map[string]bool
	counters map[string]int
	actions  map[string]func() bool
}

// NewEnv creates an empty environment.
func NewEnv() *Env {
	return &Env{
		flags:    make(map[string]bool),
		counters: make(map[string]int),
		actions:  make(map[string]func() bool),
	}
}

// SetFlag sets a named flag.
func (e *Env) SetFlag(name string, value bool) {
	e.flags[name] = value
}

// Flag returns a named flag. Unset flags are false.
func (e *Env) Flag(name string) bool {
	return e.flags[name]
}

// Increment adds one to a named counter and returns the new value.
func (e *Env) Increment(name string) int {
	e.counters[name]++
	return e.counters[name]
}

// Count returns a named counter.
func (e *Env) Count(name string) int {
	return e.counters[name]
}

// Counters returns a copy of all counters.
func (e *Env) Counters() map[string]int {
	out := make(map[string]int, len(e.counters))
	for k, v := range e.counters {
		out[k] = v
	}
	return out
}

// Register adds a named action that function nodes can call.
func (e *Env) Register(name string, fn func() bool) {
	e.actions[name] = fn
}

// Actions returns the registered action names, sorted.
func (e *Env) Actions() []string {
	names := make([]string, 0, len(e.actions))
	for name := range e.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildError reports a node that cannot be turned into an element.
type BuildError struct {
	Tree    string
	Path    string
	Message string
}

func (e *BuildError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("build %s: %s", e.Tree, e.Message)
	}
	return fmt.Sprintf("build %s.%s: %s", e.Tree, e.Path, e.Message)
}

// Builder compiles tree definitions into timeline elements.
//
// Every Build call produces fresh elements; a finished element can never be
// scheduled again, so each run (and each Repeat iteration) builds anew.
type Builder struct {
	doc   *Document
	env   *Env
	named map[string]timeline.Element // Most recently built element per name
}

// NewBuilder creates a builder over doc. A nil env gets an empty one.
func NewBuilder(doc *Document, env *Env) *Builder {
	if env == nil {
		env = NewEnv()
	}
	return &Builder{doc: doc, env: env, named: make(map[string]timeline.Element)}
}

// Env returns the builder's environment.
func (b *Builder) Env() *Env { return b.env }

// Element returns the most recently built element with the given name.
// Repeat bodies are rebuilt on every iteration, so a name inside a repeat
// refers to the current iteration.
func (b *Builder) Element(name string) (timeline.Element, bool) {
	e, ok := b.named[name]
	return e, ok
}

// BuildRoot builds the document's entry tree.
func (b *Builder) BuildRoot() (timeline.Element, error) {
	return b.Build(b.doc.Entry())
}

// Build builds the named tree.
func (b *Builder) Build(name string) (timeline.Element, error) {
	return b.buildRef(name, nil)
}

func (b *Builder) buildRef(name string, active []string) (timeline.Element, error) {
	for _, a := range active {
		if a == name {
			return nil, &BuildError{Tree: name, Message: "reference cycle"}
		}
	}

	node, ok := b.doc.Trees[name]
	if !ok {
		return nil, &BuildError{Tree: name, Message: "tree is not defined"}
	}

	c := &compiler{b: b, tree: name, active: append(active, name)}
	return c.node(node, "")
}

// compiler builds the nodes of one tree.
type compiler struct {
	b      *Builder
	tree   string
	active []string // Trees being expanded, for cycle detection
}

func (c *compiler) fail(path, format string, args ...any) error {
	return &BuildError{Tree: c.tree, Path: path, Message: fmt.Sprintf(format, args...)}
}

func (c *compiler) node(n Node, path string) (timeline.Element, error) {
	e, err := c.element(n, path)
	if err != nil {
		return nil, err
	}
	if n.Name != "" {
		timeline.Named(n.Name, e)
		c.b.named[n.Name] = e
	}
	return e, nil
}

func (c *compiler) child(n *Node, path, label string) (timeline.Element, error) {
	if n == nil {
		return nil, c.fail(path, "missing %s", label)
	}
	return c.node(*n, join(path, label))
}

func (c *compiler) optional(n *Node, path, label string) (timeline.Element, error) {
	if n == nil {
		return nil, nil
	}
	return c.node(*n, join(path, label))
}

func (c *compiler) children(n Node, path string) ([]timeline.Element, error) {
	out := make([]timeline.Element, 0, len(n.Children))
	for i, ch := range n.Children {
		e, err := c.node(ch, join(path, fmt.Sprintf("children[%d]", i)))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *compiler) element(n Node, path string) (timeline.Element, error) {
	env := c.b.env

	switch n.Kind {
	case KindFunction:
		fn, err := c.function(n, path)
		if err != nil {
			return nil, err
		}
		return timeline.Function(fn), nil

	case KindSleep:
		return timeline.Sleep(time.Duration(n.Delay)), nil

	case KindSoftSleep:
		return timeline.SoftSleep(time.Duration(n.Delay)), nil

	case KindSequence:
		items, err := c.children(n, path)
		if err != nil {
			return nil, err
		}
		return timeline.Sequence(items...), nil

	case KindAll:
		items, err := c.children(n, path)
		if err != nil {
			return nil, err
		}
		return timeline.All(items...), nil

	case KindGenerator:
		items, err := c.children(n, path)
		if err != nil {
			return nil, err
		}
		return timeline.Generator(timeline.Elements(items...)), nil

	case KindRepeat:
		if n.Child == nil {
			return nil, c.fail(path, "missing child")
		}
		// Build the first iteration now so that errors surface before the run.
		first, err := c.child(n.Child, path, "child")
		if err != nil {
			return nil, err
		}
		body := *n.Child
		childPath := join(path, "child")
		return timeline.Repeat(func() timeline.Element {
			if first != nil {
				e := first
				first = nil
				return e
			}
			e, err := c.node(body, childPath)
			if err != nil {
				// Only reachable when the document changed after the build.
				panic(&timeline.ContractError{
					Code:    timeline.ErrCodeInvalidChild,
					Message: err.Error(),
					Element: n.Name,
				})
			}
			return e
		}), nil

	case KindConditional:
		ifTrue, err := c.optional(n.Then, path, "then")
		if err != nil {
			return nil, err
		}
		ifFalse, err := c.optional(n.Else, path, "else")
		if err != nil {
			return nil, err
		}
		flag := n.Flag
		return timeline.Conditional(func() bool { return env.Flag(flag) }, ifTrue, ifFalse), nil

	case KindCriticalSection:
		work, err := c.optional(n.Work, path, "work")
		if err != nil {
			return nil, err
		}
		cleanup, err := c.child(n.Cleanup, path, "cleanup")
		if err != nil {
			return nil, err
		}
		return timeline.CriticalSection(work, cleanup), nil

	case KindBusyWait:
		flag := n.Flag
		return timeline.BusyWait(func() bool { return env.Flag(flag) }), nil

	case KindRef:
		return c.b.buildRef(n.Ref, c.active)
	}

	// Single-child wrappers.
	child, err := c.child(n.Child, path, "child")
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case KindMustRun:
		return timeline.MustRun(child), nil
	case KindRememberSoftStop:
		return timeline.RememberSoftStop(child), nil
	case KindResult:
		return timeline.Result(child), nil
	case KindRunChild:
		return timeline.RunChild(child), nil
	case KindMinimumTime:
		return timeline.MinimumTime(child, time.Duration(n.Floor)), nil
	case KindOverrideResult:
		value := n.Result != nil && *n.Result
		return timeline.OverrideResult(child, value), nil
	case KindWithFinally:
		counter := n.Counter
		return timeline.WithFinally(child, func() {
			if counter != "" {
				env.Increment(counter)
			}
		}), nil
	case KindCallback:
		return timeline.Callback(child, c.hooks(n.Counter)), nil
	default:
		return nil, c.fail(path, "unknown kind %q", n.Kind)
	}
}

// hooks returns callback hooks that count lifecycle events under counter:
// "<counter>.complete", "<counter>.hard_stop" and "<counter>.teardown".
// An empty counter yields no hooks.
func (c *compiler) hooks(counter string) timeline.CallbackHooks {
	if counter == "" {
		return timeline.CallbackHooks{}
	}
	env := c.b.env
	return timeline.CallbackHooks{
		OnComplete: func(bool) { env.Increment(counter + ".complete") },
		OnHardStop: func() { env.Increment(counter + ".hard_stop") },
		OnTeardown: func() { env.Increment(counter + ".teardown") },
	}
}

// function returns the body of a function node.
//
// The counter (if any) is incremented on every entry. The result is, in
// order of precedence: the registered action, the flag, the limit (true
// while the counter is within it), the literal result, or true.
func (c *compiler) function(n Node, path string) (func() bool, error) {
	env := c.b.env

	var action func() bool
	if n.Action != "" {
		fn, ok := env.actions[n.Action]
		if !ok {
			return nil, c.fail(path, "unknown action %q", n.Action)
		}
		action = fn
	}

	counter, flag, limit := n.Counter, n.Flag, n.Limit
	result := n.Result == nil || *n.Result

	return func() bool {
		count := 0
		if counter != "" {
			count = env.Increment(counter)
		}
		switch {
		case action != nil:
			return action()
		case flag != "":
			return env.Flag(flag)
		case limit > 0:
			return count <= limit
		default:
			return result
		}
	}, nil
}
