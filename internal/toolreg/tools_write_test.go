package toolreg

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/wonop-io/wonopcore/internal/filetime"
	"github.com/wonop-io/wonopcore/internal/store"
)

func newTestSnapshotStore(t *testing.T) *store.SnapshotStore {
	t.Helper()
	ss, err := store.NewSnapshotStore(store.NewMemoryStore(), t.TempDir())
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	return ss
}

func TestWriteToolCreatesNewFile(t *testing.T) {
	dir := t.TempDir()
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1", RootDir: dir, FileTimes: filetime.NewState(), Snapshots: newTestSnapshotStore(t)}

	_, err := WriteTool{}.Execute(tc, json.RawMessage(`{"file_path": "new.txt", "content": "hi"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "new.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hi" {
		t.Fatalf("got %q, want hi", data)
	}
}

func TestWriteToolRejectsConcurrentEditOnExistingUnreadFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "existing.txt")
	if err := os.WriteFile(target, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1", RootDir: dir, FileTimes: filetime.NewState(), Snapshots: newTestSnapshotStore(t)}

	_, err := WriteTool{}.Execute(tc, json.RawMessage(`{"file_path": "existing.txt", "content": "new"}`))
	if err == nil {
		t.Fatal("expected concurrent-edit error since the file was never read in this session")
	}
}

func TestWriteToolSucceedsAfterRead(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "existing.txt")
	if err := os.WriteFile(target, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	ft := filetime.NewState()
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1", RootDir: dir, FileTimes: ft, Snapshots: newTestSnapshotStore(t)}

	if _, err := ReadTool{}.Execute(tc, json.RawMessage(`{"path": "existing.txt"}`)); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := WriteTool{}.Execute(tc, json.RawMessage(`{"file_path": "existing.txt", "content": "new"}`)); err != nil {
		t.Fatalf("write after read: %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "new" {
		t.Fatalf("got %q, want new", data)
	}
}

func TestEditToolReplacesSingleOccurrence(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "e.txt")
	if err := os.WriteFile(target, []byte("foo bar baz"), 0o644); err != nil {
		t.Fatal(err)
	}
	ft := filetime.NewState()
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1", RootDir: dir, FileTimes: ft, Snapshots: newTestSnapshotStore(t)}

	if _, err := ReadTool{}.Execute(tc, json.RawMessage(`{"path": "e.txt"}`)); err != nil {
		t.Fatalf("read: %v", err)
	}
	_, err := EditTool{}.Execute(tc, json.RawMessage(`{"file_path": "e.txt", "old_string": "bar", "new_string": "qux"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "foo qux baz" {
		t.Fatalf("got %q, want %q", data, "foo qux baz")
	}
}

func TestEditToolRejectsAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "e.txt")
	if err := os.WriteFile(target, []byte("foo foo"), 0o644); err != nil {
		t.Fatal(err)
	}
	ft := filetime.NewState()
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1", RootDir: dir, FileTimes: ft, Snapshots: newTestSnapshotStore(t)}
	if _, err := ReadTool{}.Execute(tc, json.RawMessage(`{"path": "e.txt"}`)); err != nil {
		t.Fatalf("read: %v", err)
	}
	_, err := EditTool{}.Execute(tc, json.RawMessage(`{"file_path": "e.txt", "old_string": "foo", "new_string": "bar"}`))
	if err == nil {
		t.Fatal("expected error for ambiguous old_string match")
	}
}

func TestMultiEditToolAppliesSequentially(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "m.txt")
	if err := os.WriteFile(target, []byte("one two three"), 0o644); err != nil {
		t.Fatal(err)
	}
	ft := filetime.NewState()
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1", RootDir: dir, FileTimes: ft, Snapshots: newTestSnapshotStore(t)}
	if _, err := ReadTool{}.Execute(tc, json.RawMessage(`{"path": "m.txt"}`)); err != nil {
		t.Fatalf("read: %v", err)
	}
	args := json.RawMessage(`{"file_path": "m.txt", "edits": [{"old_string": "one", "new_string": "1"}, {"old_string": "three", "new_string": "3"}]}`)
	if _, err := MultiEditTool{}.Execute(tc, args); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "1 two 3" {
		t.Fatalf("got %q, want %q", data, "1 two 3")
	}
}

func TestPatchToolAppliesHunk(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "p.txt")
	if err := os.WriteFile(target, []byte("line1\nline2\nline3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ft := filetime.NewState()
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", MessageID: "msg_1", RootDir: dir, FileTimes: ft, Snapshots: newTestSnapshotStore(t)}
	if _, err := ReadTool{}.Execute(tc, json.RawMessage(`{"path": "p.txt"}`)); err != nil {
		t.Fatalf("read: %v", err)
	}
	diff := "@@ -1,3 +1,3 @@\n line1\n-line2\n+line2-changed\n line3"
	args, _ := json.Marshal(map[string]string{"file_path": "p.txt", "diff": diff})
	if _, err := PatchTool{}.Execute(tc, args); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "line1\nline2-changed\nline3\n" {
		t.Fatalf("got %q", data)
	}
}
