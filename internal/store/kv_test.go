package store

import (
	"errors"
	"path/filepath"
	"testing"
)

type widget struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONStoreRoundTrip(t *testing.T) {
	s, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}

	key := Key{"session", "prj_1", "ses_1"}
	want := widget{Name: "gear", Count: 3}
	if err := s.Write(key, want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got widget
	if err := s.Read(key, &got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestJSONStoreCanonicalPath(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	if err := s.Write(Key{"session", "prj_1", "ses_1"}, widget{Name: "x"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := filepath.Join(dir, "session", "prj_1", "ses_1.json")
	if _, err := filepath.EvalSymlinks(want); err != nil {
		t.Fatalf("expected file at canonical path %s: %v", want, err)
	}
}

func TestJSONStoreReadMissingReturnsErrNotFound(t *testing.T) {
	s, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	var got widget
	err = s.Read(Key{"nope"}, &got)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestValidateKeyRejectsTraversal(t *testing.T) {
	for _, bad := range []Key{
		{},
		{""},
		{"."},
		{".."},
		{"a/b"},
		{"a\\b"},
	} {
		if err := validateKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("validateKey(%v) = %v, want ErrInvalidKey", bad, err)
		}
	}
}

func TestJSONStoreList(t *testing.T) {
	s, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	for _, id := range []string{"msg_1", "msg_2", "msg_3"} {
		if err := s.Write(Key{"message", "ses_1", id}, widget{Name: id}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	// unrelated session should not show up.
	if err := s.Write(Key{"message", "ses_2", "msg_1"}, widget{Name: "other"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	keys, err := s.List(Key{"message", "ses_1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("got %d keys, want 3: %v", len(keys), keys)
	}
	if keys[0].String() != "message/ses_1/msg_1" {
		t.Fatalf("keys not sorted ascending: %v", keys)
	}
}

func TestJSONStoreExistsAndRemove(t *testing.T) {
	s, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	key := Key{"a", "b"}

	if ok, _ := s.Exists(key); ok {
		t.Fatal("should not exist before write")
	}
	if err := s.Write(key, widget{Name: "x"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if ok, err := s.Exists(key); err != nil || !ok {
		t.Fatalf("Exists = %v, %v, want true, nil", ok, err)
	}
	if err := s.Remove(key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if ok, _ := s.Exists(key); ok {
		t.Fatal("should not exist after remove")
	}
	// Removing again is a no-op, not an error.
	if err := s.Remove(key); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
}

func TestUpdateAppliesEditAndPersists(t *testing.T) {
	s := NewMemoryStore()
	key := Key{"counter"}

	got, err := Update(s, key, func(current widget, existed bool) widget {
		if existed {
			t.Fatal("should not exist on first Update")
		}
		current.Count++
		return current
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Count != 1 {
		t.Fatalf("got.Count = %d, want 1", got.Count)
	}

	got, err = Update(s, key, func(current widget, existed bool) widget {
		if !existed {
			t.Fatal("should exist on second Update")
		}
		current.Count++
		return current
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Count != 2 {
		t.Fatalf("got.Count = %d, want 2", got.Count)
	}
}

func TestMemoryStoreMirrorsJSONStoreContract(t *testing.T) {
	s := NewMemoryStore()
	key := Key{"x", "y"}

	if ok, _ := s.Exists(key); ok {
		t.Fatal("should not exist initially")
	}
	if err := s.Write(key, widget{Name: "z"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var got widget
	if err := s.Read(key, &got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Name != "z" {
		t.Fatalf("got %+v", got)
	}
	keys, err := s.List(Key{"x"})
	if err != nil || len(keys) != 1 {
		t.Fatalf("List = %v, %v", keys, err)
	}
}
