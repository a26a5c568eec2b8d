package colloquy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Engine is the dialogue runtime: it owns the compiled graphs, the per-turn
// scheduler, and the checkpoint read/write cycle. External collaborators
// (NLU, actions, normalizer, checkpointer) are injected at construction and
// reachable by nodes only through the engine, never as globals.
type Engine struct {
	spec        *Spec
	graphs      map[string]*Graph
	nlu         NLU
	actions     *ActionRegistry
	normalizer  Normalizer
	checkpoints Checkpointer
	logger      *slog.Logger
	tracer      Tracer
	stack       flowManager
	sessions    *sessionLocks

	// exit-mode durability keeps dirty states in memory until Close.
	dirtyMu sync.Mutex
	dirty   map[string]*DialogueState

	// async-mode durability tracks in-flight writes for Close to drain.
	writes sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithNLU sets the understanding provider. Required.
func WithNLU(n NLU) Option { return func(e *Engine) { e.nlu = n } }

// WithActions sets the action handler registry.
func WithActions(r *ActionRegistry) Option { return func(e *Engine) { e.actions = r } }

// WithCheckpointer sets the checkpoint store. Defaults to an in-memory store.
func WithCheckpointer(c Checkpointer) Option { return func(e *Engine) { e.checkpoints = c } }

// WithNormalizer sets the slot normalizer. Defaults to DefaultNormalizer.
func WithNormalizer(n Normalizer) Option { return func(e *Engine) { e.normalizer = n } }

// WithLogger sets a structured logger. Defaults to a nop logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithTracer sets a tracer for turn and node spans.
func WithTracer(t Tracer) Option { return func(e *Engine) { e.tracer = t } }

// New compiles the specification and builds an Engine. Compilation failures
// (unknown targets, invalid graphs) are fatal here, before any conversation
// starts.
func New(spec *Spec, opts ...Option) (*Engine, error) {
	e := &Engine{
		spec:       spec,
		actions:    NewActionRegistry(),
		normalizer: DefaultNormalizer{},
		logger:     nopLogger,
		sessions:   newSessionLocks(),
		dirty:      make(map[string]*DialogueState),
		stack: flowManager{
			maxDepth: spec.Settings.MaxStackDepth,
			strategy: spec.Settings.OverflowStrategy,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.nlu == nil {
		return nil, &ConfigError{Reason: "engine requires an NLU provider"}
	}
	if e.checkpoints == nil {
		e.checkpoints = NewMemoryCheckpointer()
	}

	graphs, err := CompileSpec(spec, e.logger)
	if err != nil {
		return nil, err
	}
	e.graphs = graphs
	return e, nil
}

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	Response string
	// State is the post-turn dialogue state. Callers must treat it as
	// read-only; the engine owns it for the next turn.
	State *DialogueState
}

// turnScratch accumulates per-turn output that is not part of durable state.
type turnScratch struct {
	say  []string
	stop bool // dispatcher decided the turn ends without running nodes
}

// addSay appends a response fragment.
func (t *turnScratch) addSay(fragment string) {
	if fragment != "" {
		t.say = append(t.say, fragment)
	}
}

// apply merges a delta into state and collects its response fragments.
func (e *Engine) apply(state *DialogueState, turn *turnScratch, d Delta) {
	d.Apply(state)
	for _, s := range d.Say {
		turn.addSay(s)
	}
}

// HandleTurn executes exactly one user turn for a session: load checkpoint,
// understand, dispatch, advance, execute nodes until a suspension point or
// flow completion, extract the response, persist. All work for one session
// key is serialized; pass a deadline on ctx to bound the turn.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, utterance string) (*TurnResult, error) {
	unlock := e.sessions.acquire(sessionID)
	defer unlock()

	start := time.Now()
	var span Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "turn",
			StringAttr("session.id", sessionID))
		defer span.End()
	}

	state, err := e.loadState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	committed := state // last durable state, untouched on NLU/deadline failure
	state = state.Clone()

	state.Messages = append(state.Messages, UserTurn(utterance))
	state.TurnCount++
	state.LastResponse = ""

	// Consume the suspension from the previous turn; the interpretation of
	// this utterance is its resolution.
	pending := state.Pending
	state.Pending = nil

	interp, err := e.interpret(ctx, state, pending, utterance)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TimeoutError{SessionID: sessionID, Elapsed: time.Since(start)}
		}
		// One retry already happened; the turn fails with state unchanged.
		e.logger.Warn("nlu failed, turn dropped", "session", sessionID, "error", err)
		return &TurnResult{Response: e.spec.Response("not_understood"), State: committed}, nil
	}
	state.LastNLU = &interp
	if span != nil {
		span.SetAttr(StringAttr("nlu.message_type", string(interp.MessageType)))
	}

	turn := &turnScratch{}
	if err := e.dispatch(ctx, state, turn, pending, interp); err != nil {
		return nil, err
	}

	if !turn.stop {
		if err := e.advanceThroughCompleted(state); err != nil {
			e.failActiveFlow(state, turn, err)
		} else if err := e.runNodes(ctx, state, turn); err != nil {
			if ctx.Err() != nil {
				return nil, &TimeoutError{SessionID: sessionID, Elapsed: time.Since(start)}
			}
			return nil, err
		}
	}

	response := e.extractResponse(state, turn)
	state.LastResponse = response
	state.LastNLU = nil
	delete(state.Metadata, metaBranchTarget)
	state.Messages = append(state.Messages, AssistantTurn(response))
	state.trimMessages(e.spec.Settings.HistoryWindow)

	if err := e.persist(ctx, sessionID, state); err != nil {
		return nil, fmt.Errorf("persist checkpoint: %w", err)
	}

	e.logger.Debug("turn complete",
		"session", sessionID,
		"turn", state.TurnCount,
		"conversation", state.Conversation,
		"stack_depth", len(state.FlowStack),
		"duration", time.Since(start))
	return &TurnResult{Response: response, State: state}, nil
}

// loadState reads the checkpoint for a session, preferring the exit-mode
// dirty cache, and creates a fresh state for unknown sessions.
func (e *Engine) loadState(ctx context.Context, sessionID string) (*DialogueState, error) {
	if e.spec.Settings.Durability == DurabilityExit {
		e.dirtyMu.Lock()
		cached := e.dirty[sessionID]
		e.dirtyMu.Unlock()
		if cached != nil {
			return cached, nil
		}
	}
	state, err := e.checkpoints.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = NewDialogueState(sessionID)
	}
	return state, nil
}

// persist writes the checkpoint per the configured durability mode.
func (e *Engine) persist(ctx context.Context, sessionID string, state *DialogueState) error {
	switch e.spec.Settings.Durability {
	case DurabilitySync:
		return e.checkpoints.Save(ctx, sessionID, state)
	case DurabilityExit:
		e.dirtyMu.Lock()
		e.dirty[sessionID] = state
		e.dirtyMu.Unlock()
		return nil
	default: // async
		snapshot := state.Clone()
		e.writes.Add(1)
		go func() {
			defer e.writes.Done()
			// The turn's ctx may already be done; the write must still land.
			if err := e.checkpoints.Save(context.Background(), sessionID, snapshot); err != nil {
				e.logger.Error("async checkpoint write failed", "session", sessionID, "error", err)
			}
		}()
		return nil
	}
}

// Close drains async checkpoint writes and flushes exit-mode dirty states.
// It does not close the injected Checkpointer; the caller owns it.
func (e *Engine) Close(ctx context.Context) error {
	e.writes.Wait()
	e.dirtyMu.Lock()
	defer e.dirtyMu.Unlock()
	var firstErr error
	for sessionID, state := range e.dirty {
		if err := e.checkpoints.Save(ctx, sessionID, state); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	e.dirty = make(map[string]*DialogueState)
	return firstErr
}

// interpret calls the NLU provider with full dialogue context, retrying once
// with the same input on failure.
func (e *Engine) interpret(ctx context.Context, state *DialogueState, pending *PendingTask, utterance string) (Interpretation, error) {
	req := NLURequest{
		Utterance:        utterance,
		History:          state.Messages,
		CurrentSlots:     state.ActiveSlots(),
		AvailableFlows:   e.spec.FlowNames(),
		AvailableActions: e.actions.Names(),
	}
	if active := state.ActiveContext(); active != nil {
		req.ActiveFlow = active.FlowName
	}
	if pending != nil && pending.Slot != "" {
		req.ExpectedSlots = []string{pending.Slot}
	} else if step, ok := e.CurrentStep(state); ok && step.Type == StepCollect {
		req.ExpectedSlots = []string{step.Slot}
	}

	interp, err := e.nlu.Interpret(ctx, req)
	if err == nil {
		return interp, nil
	}
	if ctx.Err() != nil {
		return Interpretation{}, err
	}
	e.logger.Debug("nlu retry", "error", err)
	return e.nlu.Interpret(ctx, req)
}

// runNodes executes graph nodes until a suspension point, flow termination,
// or the per-turn cap. The cap indicates a mis-compiled graph and is never
// silently swallowed.
func (e *Engine) runNodes(ctx context.Context, state *DialogueState, turn *turnScratch) error {
	for iter := 0; iter < e.spec.Settings.MaxNodeExecutions; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		fctx := state.ActiveContext()
		if fctx == nil {
			state.Conversation = ConversationIdle
			return nil
		}
		if fctx.State != FlowActive {
			return nil
		}
		g := e.graphs[fctx.FlowName]
		if g == nil {
			e.failActiveFlow(state, turn, fmt.Errorf("no graph for flow %q", fctx.FlowName))
			return nil
		}

		node, ok := g.NodeAt(fctx.CurrentStepIndex)
		if !ok || fctx.CurrentStepIndex == flowEndIndex {
			e.apply(state, turn, e.stack.pop(state, FlowCompleted))
			continue
		}

		if e.stepComplete(node, state) {
			next, end, err := e.successorIndex(g, node, state)
			if err != nil {
				e.failActiveFlow(state, turn, err)
				return nil
			}
			if end {
				fctx.CurrentStepIndex = flowEndIndex
			} else {
				if next <= node.Index {
					e.clearExecutedFrom(state, next)
				}
				fctx.CurrentStepIndex = next
			}
			continue
		}

		suspended, err := e.executeNode(ctx, state, turn, g, node)
		if err != nil {
			var actionErr *ActionError
			if errors.As(err, &actionErr) {
				// Not marked executed; the flow stays parked here for a
				// user-driven retry next turn.
				e.logger.Warn("action failed", "session", state.SessionID,
					"action", actionErr.Action, "error", actionErr.Err)
				turn.addSay(Render(e.spec.Response("action_failed"), state.ActiveSlots()))
				state.Conversation = ConversationReadyAction
				return nil
			}
			e.failActiveFlow(state, turn, err)
			return nil
		}
		if suspended {
			return nil
		}
	}

	err := fmt.Errorf("node execution cap (%d) reached", e.spec.Settings.MaxNodeExecutions)
	e.logger.Error("node execution cap reached, graph may be mis-wired",
		"session", state.SessionID, "cap", e.spec.Settings.MaxNodeExecutions)
	e.failActiveFlow(state, turn, err)
	return nil
}

// failActiveFlow moves the active flow to the error state. The session
// persists but the flow is unusable until externally reset.
func (e *Engine) failActiveFlow(state *DialogueState, turn *turnScratch, cause error) {
	e.logger.Error("flow failed", "session", state.SessionID, "error", cause)
	e.apply(state, turn, e.stack.pop(state, FlowError))
	turn.addSay(e.spec.Response("action_failed"))
	state.Conversation = ConversationIdle
}

// executeNode runs one node against state and returns whether the turn
// suspended. Nodes produce deltas; they never mutate state directly.
func (e *Engine) executeNode(ctx context.Context, state *DialogueState, turn *turnScratch, g *Graph, node *Node) (suspended bool, err error) {
	fctx := state.ActiveContext()
	slots := state.ActiveSlots()
	var span Span
	if e.tracer != nil {
		_, span = e.tracer.Start(ctx, "node",
			StringAttr("flow", g.Flow),
			StringAttr("step", node.Step.Name),
			StringAttr("type", string(node.Step.Type)))
		defer span.End()
	}

	switch node.Step.Type {
	case StepSay:
		var d Delta
		d.Say = []string{Render(node.Step.Message, slots)}
		d.markExecuted(fctx.FlowID, node.Index)
		e.apply(state, turn, d)
		return false, nil

	case StepCollect:
		var d Delta
		d.Pending = &PendingTask{
			Kind:   TaskCollect,
			Slot:   node.Step.Slot,
			Prompt: Render(node.Step.Prompt, slots),
		}
		d.Conversation = ConversationWaitingSlot
		e.apply(state, turn, d)
		return true, nil

	case StepAction:
		// Idempotent: a replay within the same flow is a no-op, enforced by
		// the executed check in the node loop before we get here.
		outputs, invokeErr := e.actions.Invoke(ctx, node.Step.Call, copyMap(slots))
		if invokeErr != nil {
			if span != nil {
				span.Error(invokeErr)
			}
			return false, invokeErr
		}
		var d Delta
		for outKey, slotName := range node.Step.MapOutputs {
			if v, ok := outputs[outKey]; ok {
				d.setSlot(state, fctx.FlowID, slotName, v)
			}
		}
		d.markExecuted(fctx.FlowID, node.Index)
		e.apply(state, turn, d)
		return false, nil

	case StepSet:
		value := node.Step.Value
		if node.Step.Expression != "" {
			v, evalErr := evalExpr(node.Step.Expression, slots)
			if evalErr != nil {
				return false, fmt.Errorf("step %s: %w", node.Step.Name, evalErr)
			}
			value = v
		}
		var d Delta
		d.setSlot(state, fctx.FlowID, node.Step.Slot, value)
		d.markExecuted(fctx.FlowID, node.Index)
		e.apply(state, turn, d)
		return false, nil

	case StepBranch:
		val, evalErr := evalString(node.Step.Evaluate, slots)
		if evalErr != nil {
			return false, fmt.Errorf("step %s: %w", node.Step.Name, evalErr)
		}
		target, ok := node.Step.Cases[val]
		if !ok {
			target = node.Step.Default
		}
		if target == "" {
			return false, fmt.Errorf("step %s: no branch case for %q and no default", node.Step.Name, val)
		}
		var d Delta
		d.BranchTarget = target
		d.markExecuted(fctx.FlowID, node.Index)
		e.apply(state, turn, d)
		if target == EndName {
			fctx.CurrentStepIndex = flowEndIndex
			return false, nil
		}
		targetNode, ok := g.Node(target)
		if !ok {
			return false, &GraphBuildError{Flow: g.Flow, Step: node.Step.Name, Target: target, Reason: "branch case references unknown step"}
		}
		if targetNode.Index <= node.Index {
			e.clearExecutedFrom(state, targetNode.Index)
		}
		fctx.CurrentStepIndex = targetNode.Index
		return false, nil

	case StepConfirm:
		return e.promptConfirm(state, turn, node), nil

	case StepLink:
		target := node.Step.Flow
		e.apply(state, turn, e.stack.pop(state, FlowCompleted))
		d, pushErr := e.stack.push(state, target, nil, PushLink, nil)
		if pushErr != nil {
			return false, pushErr
		}
		e.apply(state, turn, d)
		return false, nil

	case StepCall:
		inputs := make(map[string]any, len(node.Step.Inputs))
		for childSlot, expr := range node.Step.Inputs {
			v, evalErr := evalExpr(expr, slots)
			if evalErr != nil {
				return false, fmt.Errorf("step %s input %s: %w", node.Step.Name, childSlot, evalErr)
			}
			inputs[childSlot] = v
		}
		var d Delta
		d.markExecuted(fctx.FlowID, node.Index)
		e.apply(state, turn, d)
		pushDelta, pushErr := e.stack.push(state, node.Step.Flow, inputs, PushCall, node.Step.MapOutputs)
		if pushErr != nil {
			return false, pushErr
		}
		e.apply(state, turn, pushDelta)
		return false, nil

	default:
		return false, fmt.Errorf("step %s: unknown step type %q at runtime", node.Step.Name, node.Step.Type)
	}
}

// extractResponse assembles the turn's response: say fragments first, then a
// pending prompt, then the configured default when nothing else spoke.
func (e *Engine) extractResponse(state *DialogueState, turn *turnScratch) string {
	parts := append([]string(nil), turn.say...)
	if state.Pending != nil && state.Pending.Prompt != "" {
		parts = append(parts, state.Pending.Prompt)
	}
	if len(parts) == 0 {
		return e.spec.Response("default")
	}
	return strings.Join(parts, "\n")
}
