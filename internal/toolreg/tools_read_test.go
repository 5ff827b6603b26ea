package toolreg

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/wonop-io/wonopcore/internal/filetime"
)

func TestReadToolReadsFileAndRecordsTime(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(target, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	ft := filetime.NewState()
	tc := ToolContext{Context: context.Background(), SessionID: "ses_1", RootDir: dir, FileTimes: ft}

	out, err := ReadTool{}.Execute(tc, json.RawMessage(`{"path": "a.txt"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Text != "hello" {
		t.Fatalf("got %q, want hello", out.Text)
	}
	if err := ft.AssertNotModified("ses_1", target); err != nil {
		t.Fatalf("expected read to be recorded, got %v", err)
	}
}

func TestReadToolRejectsPathEscapingRoot(t *testing.T) {
	dir := t.TempDir()
	tc := ToolContext{Context: context.Background(), RootDir: dir}
	_, err := ReadTool{}.Execute(tc, json.RawMessage(`{"path": "../../etc/passwd"}`))
	if err == nil {
		t.Fatal("expected error for path escaping root_dir")
	}
}
