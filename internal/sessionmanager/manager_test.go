package sessionmanager

import (
	"testing"

	"minicap/pkg/models"
)

func TestOpenClose(t *testing.T) {
	m := New(4)

	if _, ok := m.Current(); ok {
		t.Fatal("Current() on empty manager returned a session")
	}

	s := m.Open("127.0.0.1:5000")
	if s.ID == "" || s.GetState() != models.SessionStateAccepted {
		t.Fatalf("Open() = %+v", s.Info())
	}
	if cur, ok := m.Current(); !ok || cur != s {
		t.Fatal("Current() is not the opened session")
	}

	m.Close(s, "eof")
	if _, ok := m.Current(); ok {
		t.Error("session still current after Close")
	}
	if s.GetState() != models.SessionStateClosed || s.CloseCause != "eof" || s.ClosedAt == nil {
		t.Errorf("closed session = %+v", s.Info())
	}

	recent := m.Recent()
	if len(recent) != 1 || recent[0] != s {
		t.Errorf("Recent() = %v", recent)
	}
}

func TestOpenReplacesCurrent(t *testing.T) {
	m := New(4)
	first := m.Open("a")
	second := m.Open("b")

	if first.GetState() != models.SessionStateClosed || first.CloseCause != "replaced" {
		t.Errorf("first session = %+v", first.Info())
	}
	if cur, _ := m.Current(); cur != second {
		t.Error("second session is not current")
	}
	if first.ID == second.ID {
		t.Error("session IDs are not unique")
	}
	if m.GetSessionCount() != 2 {
		t.Errorf("GetSessionCount() = %d, want 2", m.GetSessionCount())
	}
}

func TestHistoryIsBounded(t *testing.T) {
	m := New(3)
	var last *models.Session
	for i := 0; i < 10; i++ {
		last = m.Open("c")
		m.Close(last, "eof")
		m.Close(last, "again")
	}

	recent := m.Recent()
	if len(recent) != 3 {
		t.Fatalf("len(Recent()) = %d, want 3", len(recent))
	}
	if recent[0] != last {
		t.Error("Recent() is not newest first")
	}
	if last.CloseCause != "eof" {
		t.Errorf("second Close changed cause to %q", last.CloseCause)
	}
}
