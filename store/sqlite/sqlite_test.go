package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/colloquy-dev/colloquy"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return s
}

func testState(sessionID string) *colloquy.DialogueState {
	state := colloquy.NewDialogueState(sessionID)
	state.FlowStack = []colloquy.FlowContext{
		{FlowID: "f1", FlowName: "book_flight", State: colloquy.FlowActive, CurrentStepIndex: 2, StartedAt: 100},
	}
	state.FlowSlots = map[string]map[string]any{"f1": {"origin": "NYC"}}
	state.ExecutedSteps = map[string][]int{"f1": {0, 1}}
	state.Pending = &colloquy.PendingTask{Kind: colloquy.TaskCollect, Slot: "destination", Prompt: "Where to?"}
	state.TurnCount = 3
	state.Conversation = colloquy.ConversationWaitingSlot
	state.Completed = []colloquy.CompletedFlow{
		{FlowID: "f0", FlowName: "check_balance", State: colloquy.FlowCompleted, CompletedAt: 90},
	}
	return state
}

func TestStoreSaveLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.Load(ctx, "missing")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Load(missing) = %+v, want nil", got)
	}

	orig := testState("s-1")
	if err := s.Save(ctx, "s-1", orig); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err = s.Load(ctx, "s-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.SessionID != "s-1" || got.TurnCount != 3 {
		t.Errorf("loaded = %s/%d, want s-1/3", got.SessionID, got.TurnCount)
	}
	if len(got.FlowStack) != 1 || got.FlowStack[0].FlowName != "book_flight" {
		t.Errorf("flow stack = %+v", got.FlowStack)
	}
	if v := got.FlowSlots["f1"]["origin"]; v != "NYC" {
		t.Errorf("slot origin = %v, want NYC", v)
	}
	if got.Pending == nil || got.Pending.Slot != "destination" {
		t.Errorf("pending = %+v", got.Pending)
	}
	if len(got.Completed) != 1 || got.Completed[0].FlowName != "check_balance" {
		t.Errorf("completed log = %+v", got.Completed)
	}
}

func TestStoreSaveReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	orig := testState("s-1")
	if err := s.Save(ctx, "s-1", orig); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	orig.TurnCount = 4
	orig.FlowSlots["f1"]["origin"] = "Boston"
	if err := s.Save(ctx, "s-1", orig); err != nil {
		t.Fatalf("Save() (second) error = %v", err)
	}

	got, err := s.Load(ctx, "s-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.TurnCount != 4 {
		t.Errorf("turn count = %d, want 4", got.TurnCount)
	}
	if v := got.FlowSlots["f1"]["origin"]; v != "Boston" {
		t.Errorf("slot origin = %v, want Boston", v)
	}
}

func TestStoreDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "s-1", testState("s-1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, err := s.Load(ctx, "s-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != nil {
		t.Errorf("Load() after Delete = %+v, want nil", got)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM completed_flows WHERE session_id = ?`, "s-1").Scan(&count); err != nil {
		t.Fatalf("count completed_flows: %v", err)
	}
	if count != 0 {
		t.Errorf("completed_flows rows = %d, want 0", count)
	}
}

func TestStoreListSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"s-a", "s-b", "s-c"} {
		if err := s.Save(ctx, id, testState(id)); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	ids, err := s.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ListSessions(2) = %v, want 2 ids", ids)
	}

	ids, err = s.ListSessions(ctx, 0)
	if err != nil {
		t.Fatalf("ListSessions(0) error = %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("ListSessions(0) = %v, want all 3", ids)
	}
}

func TestStoreCompletedFlowJournal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := testState("s-1")
	if err := s.Save(ctx, "s-1", state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// Saving again with the same journal entries must not duplicate rows.
	if err := s.Save(ctx, "s-1", state); err != nil {
		t.Fatalf("Save() (second) error = %v", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM completed_flows WHERE session_id = ?`, "s-1").Scan(&count); err != nil {
		t.Fatalf("count completed_flows: %v", err)
	}
	if count != 1 {
		t.Errorf("completed_flows rows = %d, want 1", count)
	}

	var result string
	if err := s.DB().QueryRowContext(ctx, `SELECT result FROM completed_flows WHERE id = ?`, "f0").Scan(&result); err != nil {
		t.Fatalf("read journal row: %v", err)
	}
	if result != string(colloquy.FlowCompleted) {
		t.Errorf("journal result = %q, want %q", result, colloquy.FlowCompleted)
	}
}
