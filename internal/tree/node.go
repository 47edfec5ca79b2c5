package tree

import (
	"sort"

	"cuelang.org/go/cue/token"
)

// Node kinds.
const (
	KindFunction         = "function"
	KindSleep            = "sleep"
	KindSoftSleep        = "soft_sleep"
	KindSequence         = "sequence"
	KindMustRun          = "must_run"
	KindRepeat           = "repeat"
	KindAll              = "all"
	KindConditional      = "conditional"
	KindCriticalSection  = "critical_section"
	KindWithFinally      = "with_finally"
	KindCallback         = "callback"
	KindRememberSoftStop = "remember_soft_stop"
	KindMinimumTime      = "minimum_time"
	KindBusyWait         = "busy_wait"
	KindResult           = "result"
	KindOverrideResult   = "override_result"
	KindRunChild         = "run_child"
	KindGenerator        = "generator"
	KindRef              = "ref"
)

// DefaultRoot is the tree a document runs when it does not name one.
const DefaultRoot = "main"

// Node is one element of a tree definition.
//
// Which fields apply depends on Kind:
//
//	function            result, flag, action, counter, limit
//	sleep, soft_sleep   delay
//	sequence, all,
//	generator           children
//	must_run, repeat,
//	remember_soft_stop,
//	result, run_child   child
//	minimum_time        child, floor
//	override_result     child, result
//	with_finally,
//	callback            child, counter
//	conditional         flag, then, else
//	critical_section    work, cleanup
//	busy_wait           flag
//	ref                 ref
//
// Durations are virtual time units.
type Node struct {
	Kind     string `yaml:"kind" json:"kind"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Children []Node `yaml:"children,omitempty" json:"children,omitempty"`
	Child    *Node  `yaml:"child,omitempty" json:"child,omitempty"`
	Work     *Node  `yaml:"work,omitempty" json:"work,omitempty"`
	Cleanup  *Node  `yaml:"cleanup,omitempty" json:"cleanup,omitempty"`
	Then     *Node  `yaml:"then,omitempty" json:"then,omitempty"`
	Else     *Node  `yaml:"else,omitempty" json:"else,omitempty"`
	Delay    int64  `yaml:"delay,omitempty" json:"delay,omitempty"`
	Floor    int64  `yaml:"floor,omitempty" json:"floor,omitempty"`
	Result   *bool  `yaml:"result,omitempty" json:"result,omitempty"`
	Flag     string `yaml:"flag,omitempty" json:"flag,omitempty"`
	Action   string `yaml:"action,omitempty" json:"action,omitempty"`
	Counter  string `yaml:"counter,omitempty" json:"counter,omitempty"`
	Limit    int    `yaml:"limit,omitempty" json:"limit,omitempty"`
	Ref      string `yaml:"ref,omitempty" json:"ref,omitempty"`
}

// Document is a set of named trees.
type Document struct {
	// Root names the tree to run. Defaults to DefaultRoot.
	Root string `yaml:"root,omitempty" json:"root,omitempty"`

	// Trees maps tree names to definitions.
	Trees map[string]Node `yaml:"tree" json:"tree"`

	// Source is the file or directory the document was loaded from.
	Source string `yaml:"-" json:"-"`

	positions map[string]token.Pos
}

// Entry returns the name of the tree to run.
func (d *Document) Entry() string {
	if d.Root != "" {
		return d.Root
	}
	return DefaultRoot
}

// Names returns the tree names in sorted order.
func (d *Document) Names() []string {
	names := make([]string, 0, len(d.Trees))
	for name := range d.Trees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pos returns the source position of a tree, if the document was loaded from
// CUE. YAML documents have no positions.
func (d *Document) Pos(name string) token.Pos {
	if d.positions == nil {
		return token.NoPos
	}
	return d.positions[name]
}

// Bool returns a pointer to b, for building nodes in code.
func Bool(b bool) *bool {
	return &b
}

// slots returns the single-child slots of n, labelled for error paths.
func (n *Node) slots() []slot {
	var out []slot
	for _, s := range []slot{
		{"child", n.Child},
		{"work", n.Work},
		{"cleanup", n.Cleanup},
		{"then", n.Then},
		{"else", n.Else},
	} {
		if s.node != nil {
			out = append(out, s)
		}
	}
	return out
}

type slot struct {
	label string
	node  *Node
}
