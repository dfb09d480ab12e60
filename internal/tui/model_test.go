package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"github.com/smileynet/qrcard/internal/batch"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	updated, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T, want Model", next)
	}
	return updated, cmd
}

func TestNewModel_Initial(t *testing.T) {
	m := NewModel()
	if m.total != 0 || m.succeeded != 0 || m.failed != 0 {
		t.Errorf("new model counters = %d/%d/%d, want zero", m.total, m.succeeded, m.failed)
	}
	if m.done {
		t.Error("new model should not be done")
	}
	if m.Init() == nil {
		t.Fatal("Init() should return a non-nil Cmd for the spinner")
	}
}

func TestModel_Update_CountsProgress(t *testing.T) {
	m := NewModel()
	m, _ = update(t, m, BatchStartMsg{Total: 3})
	m, _ = update(t, m, ProgressMsg{Index: 0, Identity: "jdoe", Status: StatusRunning})

	if m.current != "jdoe" {
		t.Errorf("current = %q, want %q", m.current, "jdoe")
	}

	m, _ = update(t, m, ProgressMsg{Index: 0, Identity: "jdoe", Status: StatusWritten})
	m, _ = update(t, m, ProgressMsg{Index: 1, Identity: "bkim", Status: StatusFailed, Stage: batch.StageWrite, Reason: "disk full"})

	if m.total != 3 || m.succeeded != 1 || m.failed != 1 {
		t.Errorf("counters total=%d succeeded=%d failed=%d, want 3/1/1", m.total, m.succeeded, m.failed)
	}
	view := m.View()
	for _, want := range []string{"2/3", "1 written", "1 failed", "bkim [write]: disk full"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModel_Update_KeepsRecentFailures(t *testing.T) {
	m := NewModel()
	for i := 0; i < maxRecentFailures+3; i++ {
		m, _ = update(t, m, ProgressMsg{Index: i, Identity: string(rune('a' + i)), Status: StatusFailed, Stage: batch.StageRender})
	}

	if len(m.failures) != maxRecentFailures {
		t.Fatalf("failures kept = %d, want %d", len(m.failures), maxRecentFailures)
	}
	if !strings.HasPrefix(m.failures[0], "d ") {
		t.Errorf("oldest kept failure = %q, want record d", m.failures[0])
	}
	if m.failed != maxRecentFailures+3 {
		t.Errorf("failed = %d, want %d", m.failed, maxRecentFailures+3)
	}
}

func TestModel_Update_DoneQuits(t *testing.T) {
	m := NewModel()
	m, cmd := update(t, m, BatchDoneMsg{})

	if !m.done {
		t.Error("model should be done")
	}
	if cmd == nil {
		t.Fatal("BatchDoneMsg should return tea.Quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("BatchDoneMsg should quit the program")
	}
}

func TestModel_Update_ErrorShowsInView(t *testing.T) {
	m := NewModel()
	m, _ = update(t, m, BatchErrorMsg{Err: errors.New("bind failed")})

	if !m.done || m.err == nil {
		t.Fatal("model should be done with an error")
	}
	if !strings.Contains(m.View(), "Error: bind failed") {
		t.Errorf("View() should show the error:\n%s", m.View())
	}
}

func TestModel_Update_FirstAbortCancelsBatch(t *testing.T) {
	// Given a model with a cancel function
	cancelled := 0
	m := NewModel(WithCancelFunc(func() { cancelled++ }))

	// When the user presses q
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	// Then the batch is cancelled but the display keeps running
	if cancelled != 1 {
		t.Errorf("cancel calls = %d, want 1", cancelled)
	}
	if cmd != nil || m.done {
		t.Error("first abort should keep the display alive until the batch reports back")
	}
	if !strings.Contains(m.View(), "Stopping") {
		t.Errorf("View() should show the stopping notice:\n%s", m.View())
	}

	// When the user presses q again
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	// Then the display quits without cancelling twice
	if cancelled != 1 {
		t.Errorf("cancel calls = %d, want 1", cancelled)
	}
	if cmd == nil || !m.done {
		t.Error("second abort should quit")
	}
}

func TestModel_Update_AbortWithoutCancelQuits(t *testing.T) {
	m := NewModel()
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil || !m.done {
		t.Error("ctrl+c without a cancel function should quit")
	}
}

// TestModel_Teatest_FullBatch verifies the model processes a batch in sequence via teatest.
func TestModel_Teatest_FullBatch(t *testing.T) {
	tm := teatest.NewTestModel(t, NewModel(), teatest.WithInitialTermSize(80, 24))

	tm.Send(BatchStartMsg{Total: 3})
	for i, id := range []string{"a", "b", "c"} {
		tm.Send(ProgressMsg{Index: i, Identity: id, Status: StatusRunning})
		if id == "b" {
			tm.Send(ProgressMsg{Index: i, Identity: id, Status: StatusFailed, Stage: batch.StageRender, Reason: "too big"})
			continue
		}
		tm.Send(ProgressMsg{Index: i, Identity: id, Status: StatusWritten, Location: id + ".png"})
	}
	tm.Send(BatchDoneMsg{})

	tm.WaitFinished(t, teatest.WithFinalTimeout(2*time.Second))

	final := tm.FinalModel(t).(Model)
	if final.succeeded != 2 || final.failed != 1 {
		t.Errorf("final counters succeeded=%d failed=%d, want 2/1", final.succeeded, final.failed)
	}
	if !final.done {
		t.Error("final model should be done")
	}
}
