package colloquy

import (
	"errors"
	"testing"
)

func sayStep(name, msg string) Step {
	return Step{Name: name, Type: StepSay, Message: msg}
}

func TestCompileSequentialEdges(t *testing.T) {
	flow := &FlowSpec{
		Name: "f",
		Steps: []Step{
			sayStep("a", "A"),
			sayStep("b", "B"),
			sayStep("c", "C"),
		},
	}
	g, err := Compile(flow, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if g.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", g.Len())
	}
	wantNext := map[string]string{"a": "b", "b": "c", "c": ""}
	for name, want := range wantNext {
		n, ok := g.Node(name)
		if !ok {
			t.Fatalf("Node(%q) missing", name)
		}
		if n.Next != want {
			t.Errorf("Node(%q).Next = %q, want %q", name, n.Next, want)
		}
	}
	if g.First().Step.Name != "a" {
		t.Errorf("First() = %q, want a", g.First().Step.Name)
	}
}

func TestCompileJumpToOverridesFallthrough(t *testing.T) {
	flow := &FlowSpec{
		Name: "f",
		Steps: []Step{
			{Name: "a", Type: StepSay, Message: "A", JumpTo: "c"},
			sayStep("b", "B"),
			sayStep("c", "C"),
		},
	}
	g, err := Compile(flow, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	n, _ := g.Node("a")
	if n.Next != "c" {
		t.Errorf("Node(a).Next = %q, want c", n.Next)
	}
}

func TestCompileUnknownJumpTarget(t *testing.T) {
	flow := &FlowSpec{
		Name: "f",
		Steps: []Step{
			{Name: "a", Type: StepSay, Message: "A", JumpTo: "nowhere"},
		},
	}
	_, err := Compile(flow, nil)
	var buildErr *GraphBuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Compile() error = %v, want *GraphBuildError", err)
	}
	if buildErr.Target != "nowhere" {
		t.Errorf("error target = %q, want nowhere", buildErr.Target)
	}
}

func TestCompileUnknownBranchTarget(t *testing.T) {
	flow := &FlowSpec{
		Name: "f",
		Steps: []Step{
			{Name: "pick", Type: StepBranch, Evaluate: "x", Cases: map[string]string{"a": "missing"}},
		},
	}
	_, err := Compile(flow, nil)
	var buildErr *GraphBuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Compile() error = %v, want *GraphBuildError", err)
	}
}

func TestCompileUnknownConfirmTarget(t *testing.T) {
	flow := &FlowSpec{
		Name: "f",
		Steps: []Step{
			{Name: "ok", Type: StepConfirm, Message: "Sure?", OnConfirm: "done", OnDeny: "missing"},
			sayStep("done", "Done."),
		},
	}
	_, err := Compile(flow, nil)
	var buildErr *GraphBuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Compile() error = %v, want *GraphBuildError", err)
	}
	if buildErr.Target != "missing" {
		t.Errorf("error target = %q, want missing", buildErr.Target)
	}
}

func TestCompileWhileDesugar(t *testing.T) {
	flow := &FlowSpec{
		Name: "f",
		Steps: []Step{
			{Name: "loop", Type: StepWhile, Condition: `more == "yes"`, Do: []string{"body_a", "body_b"}, ExitTo: "after"},
			sayStep("body_a", "A"),
			sayStep("body_b", "B"),
			sayStep("after", "After"),
		},
	}
	g, err := Compile(flow, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	// The while step becomes a branch guard that inherits its index.
	guard, ok := g.Node(guardName("loop"))
	if !ok {
		t.Fatal("guard node missing")
	}
	if guard.Step.Type != StepBranch {
		t.Errorf("guard type = %q, want %q", guard.Step.Type, StepBranch)
	}
	if guard.Index != 0 {
		t.Errorf("guard index = %d, want 0 (inherited)", guard.Index)
	}
	if got := guard.Step.Cases["true"]; got != "body_a" {
		t.Errorf("guard true case = %q, want body_a", got)
	}
	if guard.Step.Default != "after" {
		t.Errorf("guard default = %q, want after", guard.Step.Default)
	}

	// The original name aliases to the guard so edges keep resolving.
	byAlias, ok := g.Node("loop")
	if !ok || byAlias != guard {
		t.Error("Node(loop) must resolve to the guard via alias")
	}

	// The last body member jumps back to the guard.
	last, _ := g.Node("body_b")
	if last.Next != guardName("loop") {
		t.Errorf("body_b.Next = %q, want %q", last.Next, guardName("loop"))
	}
}

func TestCompileWhileImplicitExit(t *testing.T) {
	// Bodies declared after the loop are the natural layout; without exit_to
	// the guard's false edge must terminate the flow, never fall through into
	// the body.
	flow := &FlowSpec{
		Name: "f",
		Steps: []Step{
			{Name: "loop", Type: StepWhile, Condition: "go", Do: []string{"body"}},
			sayStep("body", "B"),
		},
	}
	g, err := Compile(flow, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	guard, _ := g.Node("loop")
	if guard.Step.Default != EndName {
		t.Errorf("guard default = %q, want %q", guard.Step.Default, EndName)
	}
	body, _ := g.Node("body")
	if body.Next != guardName("loop") {
		t.Errorf("body.Next = %q, want %q", body.Next, guardName("loop"))
	}
}

func TestCompileWhileUnknownBody(t *testing.T) {
	flow := &FlowSpec{
		Name: "f",
		Steps: []Step{
			{Name: "loop", Type: StepWhile, Condition: "go", Do: []string{"ghost"}},
		},
	}
	_, err := Compile(flow, nil)
	var buildErr *GraphBuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("Compile() error = %v, want *GraphBuildError", err)
	}
	if buildErr.Target != "ghost" {
		t.Errorf("error target = %q, want ghost", buildErr.Target)
	}
}

func TestCompileNestedWhile(t *testing.T) {
	flow := &FlowSpec{
		Name: "f",
		Steps: []Step{
			{Name: "outer", Type: StepWhile, Condition: "a", Do: []string{"mid", "inner"}, ExitTo: "end_step"},
			sayStep("mid", "M"),
			{Name: "inner", Type: StepWhile, Condition: "b", Do: []string{"deep"}},
			sayStep("deep", "D"),
			sayStep("end_step", "E"),
		},
	}
	g, err := Compile(flow, nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	// The outer loop rewrites the inner while's exit to the outer guard; the
	// inner body jumps back to the inner guard.
	innerGuard, ok := g.Node("inner")
	if !ok {
		t.Fatal("inner guard missing")
	}
	if innerGuard.Step.Default != guardName("outer") {
		t.Errorf("inner guard default = %q, want %q", innerGuard.Step.Default, guardName("outer"))
	}
	deep, _ := g.Node("deep")
	if deep.Next != guardName("inner") {
		t.Errorf("deep.Next = %q, want %q", deep.Next, guardName("inner"))
	}
}

func TestCompileSpecValidatesCrossFlowTargets(t *testing.T) {
	spec := &Spec{
		Flows: []FlowSpec{
			{Name: "a", Steps: []Step{{Name: "go", Type: StepLink, Flow: "missing"}}},
		},
	}
	_, err := CompileSpec(spec, nil)
	var buildErr *GraphBuildError
	if !errors.As(err, &buildErr) {
		t.Fatalf("CompileSpec() error = %v, want *GraphBuildError", err)
	}
	if buildErr.Target != "missing" {
		t.Errorf("error target = %q, want missing", buildErr.Target)
	}
}

func TestCompileSpecResolvesCallTargets(t *testing.T) {
	spec := &Spec{
		Flows: []FlowSpec{
			{Name: "parent", Steps: []Step{{Name: "child_call", Type: StepCall, Flow: "child"}}},
			{Name: "child", Steps: []Step{sayStep("hi", "Hi")}},
		},
	}
	graphs, err := CompileSpec(spec, nil)
	if err != nil {
		t.Fatalf("CompileSpec() error = %v", err)
	}
	if len(graphs) != 2 {
		t.Errorf("graphs = %d, want 2", len(graphs))
	}
}
