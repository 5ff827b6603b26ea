package filetime

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestAssertNotModifiedBeforeReadFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "hello")

	tr := NewTracker()
	err := tr.AssertNotModified(path)
	if !errors.Is(err, ErrNotRead) {
		t.Fatalf("err = %v, want ErrNotRead", err)
	}
}

func TestAssertNotModifiedAfterReadSucceeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "hello")

	tr := NewTracker()
	tr.RecordRead(path)

	if err := tr.AssertNotModified(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAssertNotModifiedDetectsExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "hello")

	tr := NewTracker()
	tr.recordReadAt(path, time.Now().Add(-time.Hour))

	writeFile(t, path, "modified externally")

	err := tr.AssertNotModified(path)
	var modErr *ModifiedSinceReadError
	if !errors.As(err, &modErr) {
		t.Fatalf("err = %v, want *ModifiedSinceReadError", err)
	}
}

func TestAssertIfExistsPassesForNewFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.txt")

	tr := NewTracker()
	if err := tr.AssertIfExists(path); err != nil {
		t.Fatalf("unexpected error for nonexistent file: %v", err)
	}
}

func TestAssertIfExistsChecksExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "hello")

	tr := NewTracker()
	err := tr.AssertIfExists(path)
	if !errors.Is(err, ErrNotRead) {
		t.Fatalf("err = %v, want ErrNotRead (existing file never read)", err)
	}
}

func TestForgetRemovesTracking(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "hello")

	tr := NewTracker()
	tr.RecordRead(path)
	tr.Forget(path)

	if err := tr.AssertNotModified(path); !errors.Is(err, ErrNotRead) {
		t.Fatalf("err = %v, want ErrNotRead after Forget", err)
	}
}

func TestClearRemovesAllTracking(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.txt")
	p2 := filepath.Join(dir, "b.txt")
	writeFile(t, p1, "1")
	writeFile(t, p2, "2")

	tr := NewTracker()
	tr.RecordRead(p1)
	tr.RecordRead(p2)
	tr.Clear()

	if err := tr.AssertNotModified(p1); !errors.Is(err, ErrNotRead) {
		t.Fatal("expected ErrNotRead for p1 after Clear")
	}
	if err := tr.AssertNotModified(p2); !errors.Is(err, ErrNotRead) {
		t.Fatal("expected ErrNotRead for p2 after Clear")
	}
}

func TestStateIsolatesSessionsByID(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.txt")
	p2 := filepath.Join(dir, "b.txt")
	writeFile(t, p1, "1")
	writeFile(t, p2, "2")

	s := NewState()
	s.RecordRead("ses_1", p1)
	s.RecordRead("ses_2", p2)

	if err := s.AssertNotModified("ses_1", p1); err != nil {
		t.Fatalf("ses_1 should be able to access p1: %v", err)
	}
	if err := s.AssertNotModified("ses_1", p2); !errors.Is(err, ErrNotRead) {
		t.Fatal("ses_1 should not be able to access p2")
	}
	if err := s.AssertNotModified("ses_2", p2); err != nil {
		t.Fatalf("ses_2 should be able to access p2: %v", err)
	}
	if err := s.AssertNotModified("ses_2", p1); !errors.Is(err, ErrNotRead) {
		t.Fatal("ses_2 should not be able to access p1")
	}
}

func TestStateClearSessionDropsItsTracker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	writeFile(t, path, "hello")

	s := NewState()
	s.RecordRead("ses_1", path)
	s.ClearSession("ses_1")

	if err := s.AssertNotModified("ses_1", path); !errors.Is(err, ErrNotRead) {
		t.Fatal("expected ErrNotRead after ClearSession")
	}
}

func TestAssertIfExistsOnUnknownSessionForNewPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brand-new.txt")

	s := NewState()
	if err := s.AssertIfExists("ses_never_seen", path); err != nil {
		t.Fatalf("new path should pass even for an unknown session: %v", err)
	}
}
