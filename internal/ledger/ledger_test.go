package ledger

import (
	"fmt"
	"testing"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
)

func TestLedger_AppendAndRecent(t *testing.T) {
	l := New(10)

	l.Append("open_app", "browser", model.SourceVoice, StatusSuccess, "")
	l.Append("shutdown", "", model.SourceManual, StatusPending, "queued")
	l.Append("volume", "", model.SourceVoice, StatusFailed, "timeout")

	if l.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", l.Len())
	}

	recent := l.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(recent))
	}
	// Newest last.
	if recent[0].Action != "shutdown" || recent[1].Action != "volume" {
		t.Errorf("unexpected order: %s, %s", recent[0].Action, recent[1].Action)
	}

	// Recent(0) and oversized n return everything.
	if len(l.Recent(0)) != 3 || len(l.Recent(100)) != 3 {
		t.Error("Recent with n<=0 or n>len should return all entries")
	}
}

func TestLedger_FIFOEviction(t *testing.T) {
	l := New(5)
	for i := 0; i < 8; i++ {
		l.Append(fmt.Sprintf("action_%d", i), "", model.SourceSystem, StatusSuccess, "")
	}

	if l.Len() != 5 {
		t.Fatalf("expected capacity 5, got %d", l.Len())
	}
	entries := l.Recent(5)
	if entries[0].Action != "action_3" {
		t.Errorf("oldest retained should be action_3, got %s", entries[0].Action)
	}
	if entries[4].Action != "action_7" {
		t.Errorf("newest should be action_7, got %s", entries[4].Action)
	}
	// IDs keep increasing across eviction.
	if entries[4].ID != 8 {
		t.Errorf("expected id 8, got %d", entries[4].ID)
	}
}

func TestLedger_Stats(t *testing.T) {
	l := New(10)

	// Empty ledger reports a perfect rate.
	if s := l.Stats(); s.SuccessRate != 100 || s.Total != 0 {
		t.Fatalf("empty stats = %+v", s)
	}

	l.Append("a", "", model.SourceVoice, StatusSuccess, "")
	l.Append("b", "", model.SourceVoice, StatusSuccess, "")
	l.Append("c", "", model.SourceVoice, StatusFailed, "")

	s := l.Stats()
	if s.Total != 3 || s.Successful != 2 || s.Failed != 1 {
		t.Fatalf("stats = %+v", s)
	}
	if s.SuccessRate != 67 {
		t.Errorf("expected 67%% (rounded), got %d", s.SuccessRate)
	}

	// Pending and blocked count toward total only.
	l.Append("d", "", model.SourceVoice, StatusPending, "")
	l.Append("e", "", model.SourceVoice, StatusBlocked, "")
	s = l.Stats()
	if s.Total != 5 || s.Successful != 2 || s.Failed != 1 {
		t.Fatalf("stats with pending/blocked = %+v", s)
	}
}

func TestLedger_Filters(t *testing.T) {
	l := New(10)
	l.Append("open_app", "browser", model.SourceVoice, StatusSuccess, "")
	l.Append("open_app", "editor", model.SourceManual, StatusFailed, "crash")
	l.Append("shutdown", "", model.SourceManual, StatusFailed, "timeout")

	byAction := l.ByAction("open_app")
	if len(byAction) != 2 {
		t.Fatalf("expected 2 open_app entries, got %d", len(byAction))
	}

	failures := l.Failures()
	if len(failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(failures))
	}
	if failures[0].Target != "editor" || failures[1].Action != "shutdown" {
		t.Error("failures should be oldest first")
	}
}
