package store

import (
	"errors"
	"path/filepath"
	"testing"
)

type flags struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	var f flags
	if err := s.Get("grow", "flags", &f); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing: got %v, want ErrNotFound", err)
	}

	if err := s.Set("grow", "flags", flags{Active: true, Count: 3}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Get("grow", "flags", &f); err != nil || !f.Active || f.Count != 3 {
		t.Fatalf("staged Get: %+v err=%v", f, err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var other flags
	if err := s.Get("other", "flags", &other); !IsNotFound(err) {
		t.Errorf("namespaces must be separate, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	testStore(t, m)

	// Uncommitted writes are lost on restart.
	m.Set("grow", "flags", flags{Count: 99})
	r := m.Reopen()
	var f flags
	if err := r.Get("grow", "flags", &f); err != nil {
		t.Fatal(err)
	}
	if f.Count != 3 {
		t.Errorf("after reopen: got count %d, want 3", f.Count)
	}
}

func TestMemoryCommitErrorKeepsStaged(t *testing.T) {
	m := NewMemory()
	m.CommitError = errors.New("disk full")
	m.Set("grow", "grow_active", true)
	if err := m.Commit(); err == nil {
		t.Fatal("expected commit error")
	}
	m.CommitError = nil
	if err := m.Commit(); err != nil {
		t.Fatal(err)
	}
	var active bool
	if err := m.Reopen().Get("grow", "grow_active", &active); err != nil || !active {
		t.Errorf("retried commit lost value: %v %v", active, err)
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	b, err := OpenBolt(path)
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, b)
	b.Set("grow", "settings_received", true)
	if err := b.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	b, err = OpenBolt(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	var f flags
	if err := b.Get("grow", "flags", &f); err != nil || f.Count != 3 {
		t.Errorf("flags after reopen: %+v err=%v", f, err)
	}
	var received bool
	if err := b.Get("grow", "settings_received", &received); err != nil || !received {
		t.Errorf("settings_received after reopen: %v err=%v", received, err)
	}
}
