package colloquy

import (
	"fmt"
	"log/slog"
	"strings"
)

// EndName is the explicit edge target that terminates a flow. Every flow also
// has an implicit END edge after its last step.
const EndName = "__end__"

// guardName returns the synthetic guard node name for a while step.
func guardName(step string) string {
	return "__" + step + "_guard"
}

// Node is one executable step in a compiled graph. Index is the step's stable
// source-order position and doubles as the idempotence key for action steps.
// Next is the sequential successor ("" means END); branch and confirm nodes
// route through conditional edges instead.
type Node struct {
	Step  Step
	Index int
	Next  string
}

// Graph is the immutable, compiled form of one flow: step-name -> node plus
// the ordered index. Safe for concurrent use by any number of sessions.
type Graph struct {
	Flow    string
	nodes   map[string]*Node
	byIndex map[int]*Node
	order   []string
	aliases map[string]string // while name -> guard name
}

// Node returns the named node, resolving while-step aliases.
func (g *Graph) Node(name string) (*Node, bool) {
	if target, ok := g.aliases[name]; ok {
		name = target
	}
	n, ok := g.nodes[name]
	return n, ok
}

// NodeAt returns the node with the given stable index.
func (g *Graph) NodeAt(index int) (*Node, bool) {
	n, ok := g.byIndex[index]
	return n, ok
}

// First returns the entry node of the flow.
func (g *Graph) First() *Node {
	return g.nodes[g.order[0]]
}

// Len returns the number of executable nodes.
func (g *Graph) Len() int { return len(g.order) }

// Compile translates a flow into an executable node graph: while steps are
// desugared into guard/body/jump-back form, every referenced target is
// validated, and sequential/conditional edges are wired. Unreachable steps
// are legal but logged.
func Compile(flow *FlowSpec, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = nopLogger
	}

	// Stable indices in source order. Synthetic guard nodes inherit the
	// index of the while step they replace, so idempotence keys never shift.
	steps := make([]Step, len(flow.Steps))
	copy(steps, flow.Steps)
	indices := make([]int, len(steps))
	for i := range indices {
		indices[i] = i
	}

	g := &Graph{
		Flow:    flow.Name,
		nodes:   make(map[string]*Node),
		byIndex: make(map[int]*Node),
		aliases: make(map[string]string),
	}

	// Desugar while steps in place. Inner loops appear in the same list, so
	// a single in-order pass handles nesting: an outer loop rewrites its
	// last body member before that member is itself desugared.
	for i := 0; i < len(steps); i++ {
		if steps[i].Type != StepWhile {
			continue
		}
		w := steps[i]
		guard := guardName(w.Name)

		// Exit edge: explicit exit_to, otherwise the false guard terminates
		// the flow.
		exit := w.ExitTo
		if exit == "" {
			exit = EndName
		}

		// Rewrite the last body member to jump back to the guard.
		lastBody := w.Do[len(w.Do)-1]
		found := false
		for j := range steps {
			if steps[j].Name != lastBody {
				continue
			}
			found = true
			switch {
			case steps[j].Type == StepWhile && steps[j].ExitTo == "":
				steps[j].ExitTo = guard
			case steps[j].JumpTo == "":
				steps[j].JumpTo = guard
			}
		}
		if !found {
			return nil, &GraphBuildError{Flow: flow.Name, Step: w.Name, Target: lastBody, Reason: "while body references unknown step"}
		}
		for _, body := range w.Do[:len(w.Do)-1] {
			if !stepExists(steps, body) {
				return nil, &GraphBuildError{Flow: flow.Name, Step: w.Name, Target: body, Reason: "while body references unknown step"}
			}
		}

		steps[i] = Step{
			Name:     guard,
			Type:     StepBranch,
			Evaluate: w.Condition,
			Cases:    map[string]string{"true": w.Do[0]},
			Default:  exit,
		}
		g.aliases[w.Name] = guard
	}

	// Register nodes.
	for i := range steps {
		s := steps[i]
		n := &Node{Step: s, Index: indices[i]}
		g.nodes[s.Name] = n
		g.byIndex[n.Index] = n
		g.order = append(g.order, s.Name)
	}

	// Wire sequential edges: explicit jump_to overrides fall-through; the
	// last step falls through to END.
	for i, name := range g.order {
		n := g.nodes[name]
		switch {
		case n.Step.JumpTo != "":
			n.Next = n.Step.JumpTo
		case i+1 < len(g.order):
			n.Next = g.order[i+1]
		default:
			n.Next = ""
		}
	}

	// Validate every referenced target resolves.
	if err := g.validateTargets(); err != nil {
		return nil, err
	}

	// Unreachable steps are legal but worth surfacing.
	reachable := g.findReachable()
	for _, name := range g.order {
		if !reachable[name] && !strings.HasPrefix(name, "__") {
			logger.Warn("unreachable step", "flow", flow.Name, "step", name)
		}
	}

	return g, nil
}

func stepExists(steps []Step, name string) bool {
	for i := range steps {
		if steps[i].Name == name {
			return true
		}
	}
	return false
}

// resolveTarget reports whether a referenced step name exists in the graph.
func (g *Graph) resolveTarget(name string) bool {
	if name == "" || name == EndName {
		return true
	}
	_, ok := g.Node(name)
	return ok
}

func (g *Graph) validateTargets() error {
	check := func(step, target, kind string) error {
		if !g.resolveTarget(target) {
			return &GraphBuildError{Flow: g.Flow, Step: step, Target: target, Reason: kind + " references unknown step"}
		}
		return nil
	}
	for _, name := range g.order {
		s := g.nodes[name].Step
		if err := check(name, s.JumpTo, "jump_to"); err != nil {
			return err
		}
		switch s.Type {
		case StepBranch:
			for _, target := range s.Cases {
				if err := check(name, target, "branch case"); err != nil {
					return err
				}
			}
			if err := check(name, s.Default, "branch default"); err != nil {
				return err
			}
		case StepConfirm:
			if err := check(name, s.OnConfirm, "on_confirm"); err != nil {
				return err
			}
			if err := check(name, s.OnDeny, "on_deny"); err != nil {
				return err
			}
		}
	}
	return nil
}

// findReachable walks all edges from the entry node.
func (g *Graph) findReachable() map[string]bool {
	reachable := make(map[string]bool)
	var visit func(string)
	visit = func(name string) {
		if target, ok := g.aliases[name]; ok {
			name = target
		}
		if name == "" || name == EndName || reachable[name] {
			return
		}
		n, ok := g.nodes[name]
		if !ok {
			return
		}
		reachable[name] = true
		visit(n.Next)
		if n.Step.Type == StepBranch {
			for _, t := range n.Step.Cases {
				visit(t)
			}
			visit(n.Step.Default)
		}
		if n.Step.Type == StepConfirm {
			visit(n.Step.OnConfirm)
			visit(n.Step.OnDeny)
		}
	}
	if len(g.order) > 0 {
		visit(g.order[0])
	}
	return reachable
}

// CompileSpec compiles every flow in a specification and validates cross-flow
// link/call targets.
func CompileSpec(spec *Spec, logger *slog.Logger) (map[string]*Graph, error) {
	graphs := make(map[string]*Graph, len(spec.Flows))
	for i := range spec.Flows {
		f := &spec.Flows[i]
		g, err := Compile(f, logger)
		if err != nil {
			return nil, err
		}
		graphs[f.Name] = g
	}
	for i := range spec.Flows {
		f := &spec.Flows[i]
		for j := range f.Steps {
			s := &f.Steps[j]
			if s.Type != StepLink && s.Type != StepCall {
				continue
			}
			if _, ok := graphs[s.Flow]; !ok {
				return nil, &GraphBuildError{
					Flow: f.Name, Step: s.Name, Target: s.Flow,
					Reason: fmt.Sprintf("%s target references unknown flow", s.Type),
				}
			}
		}
	}
	return graphs, nil
}
