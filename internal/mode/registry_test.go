package mode

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(filepath.Join(t.TempDir(), "modes.yaml"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func TestRegistry_SeedsDefaultActive(t *testing.T) {
	r := newTestRegistry(t)

	m, err := r.ActiveMode()
	if err != nil {
		t.Fatalf("ActiveMode: %v", err)
	}
	if m.ID != DefaultModeID {
		t.Errorf("active = %q, want %q", m.ID, DefaultModeID)
	}
	if m.Origin != OriginBuiltin {
		t.Errorf("origin = %q, want builtin", m.Origin)
	}
}

func TestRegistry_ListOrder(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.CreateCustom("First", "prompt a", "", "")
	if err != nil {
		t.Fatalf("CreateCustom: %v", err)
	}
	b, err := r.CreateCustom("Second", "prompt b", "", "")
	if err != nil {
		t.Fatalf("CreateCustom: %v", err)
	}

	got := r.List()
	wantIDs := []string{"normal", "email", a.ID, b.ID}
	if len(got) != len(wantIDs) {
		t.Fatalf("List returned %d modes, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("List[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestRegistry_CreateCustomRejectsEmptyPrompt(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.CreateCustom("Bad", "", "", ""); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestRegistry_UpdateCustom(t *testing.T) {
	r := newTestRegistry(t)
	m, err := r.CreateCustom("Notes", "take notes", "", "")
	if err != nil {
		t.Fatalf("CreateCustom: %v", err)
	}

	name := "Meeting notes"
	ok, err := r.UpdateCustom(m.ID, Patch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateCustom: %v", err)
	}
	if !ok {
		t.Fatal("UpdateCustom returned false for known id")
	}

	got := r.List()
	last := got[len(got)-1]
	if last.Name != "Meeting notes" {
		t.Errorf("name = %q, want %q", last.Name, "Meeting notes")
	}
	if last.Prompt != "take notes" {
		t.Errorf("prompt changed unexpectedly: %q", last.Prompt)
	}
}

func TestRegistry_UpdateCustomUnknownIDIsNoop(t *testing.T) {
	r := newTestRegistry(t)
	name := "x"
	ok, err := r.UpdateCustom("custom-nope", Patch{Name: &name})
	if err != nil {
		t.Fatalf("UpdateCustom: %v", err)
	}
	if ok {
		t.Fatal("UpdateCustom returned true for unknown id")
	}
}

func TestRegistry_DeleteActiveCustomFallsBackToDefault(t *testing.T) {
	r := newTestRegistry(t)
	m, err := r.CreateCustom("Scratch", "scratch prompt", "", "")
	if err != nil {
		t.Fatalf("CreateCustom: %v", err)
	}
	if err := r.SetActive(m.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	if err := r.DeleteCustom(m.ID); err != nil {
		t.Fatalf("DeleteCustom: %v", err)
	}

	active, err := r.ActiveMode()
	if err != nil {
		t.Fatalf("ActiveMode after delete: %v", err)
	}
	if active.ID != DefaultModeID {
		t.Errorf("active after deleting active custom = %q, want %q", active.ID, DefaultModeID)
	}
}

func TestRegistry_CycleWrapsToOriginal(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.CreateCustom("Third", "third prompt", "", ""); err != nil {
		t.Fatalf("CreateCustom: %v", err)
	}

	start, err := r.ActiveMode()
	if err != nil {
		t.Fatalf("ActiveMode: %v", err)
	}

	n := len(r.List())
	for i := 0; i < n; i++ {
		if _, err := r.Cycle(); err != nil {
			t.Fatalf("Cycle %d: %v", i, err)
		}
	}

	end, err := r.ActiveMode()
	if err != nil {
		t.Fatalf("ActiveMode after full cycle: %v", err)
	}
	if end.ID != start.ID {
		t.Errorf("after %d cycles active = %q, want %q", n, end.ID, start.ID)
	}
}

func TestRegistry_ActiveModeDanglingID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modes.yaml")
	r, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	m, err := r.CreateCustom("Temp", "temp prompt", "", "")
	if err != nil {
		t.Fatalf("CreateCustom: %v", err)
	}
	if err := r.SetActive(m.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	// Simulate a stale state file by force-clearing customs in memory.
	r.mu.Lock()
	r.customs = nil
	r.mu.Unlock()

	if _, err := r.ActiveMode(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// Caller recovery path.
	if err := r.ResetActive(); err != nil {
		t.Fatalf("ResetActive: %v", err)
	}
	active, err := r.ActiveMode()
	if err != nil {
		t.Fatalf("ActiveMode after reset: %v", err)
	}
	if active.ID != DefaultModeID {
		t.Errorf("active = %q, want default", active.ID)
	}
}

func TestRegistry_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modes.yaml")
	r1, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	m, err := r1.CreateCustom("Durable", "durable prompt", "📝", "#ffaa00")
	if err != nil {
		t.Fatalf("CreateCustom: %v", err)
	}
	if err := r1.SetActive(m.ID); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	r2, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry reload: %v", err)
	}
	active, err := r2.ActiveMode()
	if err != nil {
		t.Fatalf("ActiveMode after reload: %v", err)
	}
	if active.ID != m.ID {
		t.Errorf("reloaded active = %q, want %q", active.ID, m.ID)
	}
	if active.Prompt != "durable prompt" {
		t.Errorf("reloaded prompt = %q", active.Prompt)
	}
	if active.Origin != OriginCustom {
		t.Errorf("reloaded origin = %q, want custom", active.Origin)
	}
}
