package toolreg

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wonop-io/wonopcore/internal/model"
)

// writeLike is shared by write/edit/multiedit/patch: every one of them
// must reject out-of-root paths, detect concurrent external edits via the
// File-Time Tracker, snapshot the pre-edit content, write atomically
// (through the Sandbox Runtime if attached), and record a fresh read time,
// per §4.2's mandatory write behaviors.
func writeLike(tc ToolContext, path, newContent string) (Output, error) {
	resolved, err := resolveInRoot(tc.RootDir, path)
	if err != nil {
		return Output{}, err
	}

	existed, err := fileExists(tc, resolved)
	if err != nil {
		return Output{}, err
	}

	if existed && tc.FileTimes != nil {
		if err := tc.FileTimes.AssertNotModified(tc.SessionID, resolved); err != nil {
			return Output{}, fmt.Errorf("concurrent edit detected, re-read %s before writing: %w", resolved, err)
		}
	}

	if existed && tc.Snapshots != nil {
		if _, err := tc.Snapshots.Take(model.NewSnapshotID(), tc.SessionID, tc.MessageID, "pre-edit: "+resolved, []string{resolved}); err != nil {
			return Output{}, fmt.Errorf("toolreg: snapshotting %s: %w", resolved, err)
		}
	}

	if err := writeAtomic(tc, resolved, newContent); err != nil {
		return Output{}, err
	}

	if tc.FileTimes != nil {
		tc.FileTimes.RecordRead(tc.SessionID, resolved)
	}

	return Output{Text: fmt.Sprintf("wrote %d bytes to %s", len(newContent), resolved), Metadata: map[string]any{"path": resolved}}, nil
}

func fileExists(tc ToolContext, path string) (bool, error) {
	if tc.Sandbox != nil {
		sp, err := tc.Sandbox.PathMapper().ToSandbox(path)
		if err != nil {
			return false, err
		}
		return tc.Sandbox.PathExists(tc.Context, sp)
	}
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func writeAtomic(tc ToolContext, path, content string) error {
	if tc.Sandbox != nil {
		sp, err := tc.Sandbox.PathMapper().ToSandbox(path)
		if err != nil {
			return err
		}
		return tc.Sandbox.WriteFile(tc.Context, sp, []byte(content), 0o644)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WriteTool implements "write": create or overwrite a file with full
// content.
type WriteTool struct{}

func (WriteTool) ID() string          { return "write" }
func (WriteTool) Description() string { return "Write full content to a file, creating or overwriting it." }
func (WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"file_path": {"type": "string"}, "content": {"type": "string"}},
		"required": ["file_path", "content"]
	}`)
}

func (WriteTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var params struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Output{}, err
	}
	return writeLike(tc, params.FilePath, params.Content)
}

// EditTool implements "edit": a single find/replace within a file.
type EditTool struct{}

func (EditTool) ID() string          { return "edit" }
func (EditTool) Description() string { return "Replace one occurrence of old_string with new_string in a file." }
func (EditTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string"},
			"old_string": {"type": "string"},
			"new_string": {"type": "string"}
		},
		"required": ["file_path", "old_string", "new_string"]
	}`)
}

func (EditTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var params struct {
		FilePath  string `json:"file_path"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Output{}, err
	}

	resolved, err := resolveInRoot(tc.RootDir, params.FilePath)
	if err != nil {
		return Output{}, err
	}
	if tc.FileTimes != nil {
		if err := tc.FileTimes.AssertNotModified(tc.SessionID, resolved); err != nil {
			return Output{}, fmt.Errorf("concurrent edit detected, re-read %s before editing: %w", resolved, err)
		}
	}

	current, err := readCurrent(tc, resolved)
	if err != nil {
		return Output{}, err
	}
	if strings.Count(current, params.OldString) != 1 {
		return Output{}, fmt.Errorf("toolreg: old_string must match exactly once in %s", resolved)
	}
	updated := strings.Replace(current, params.OldString, params.NewString, 1)
	return writeLike(tc, params.FilePath, updated)
}

func readCurrent(tc ToolContext, resolved string) (string, error) {
	if tc.Sandbox != nil {
		sp, err := tc.Sandbox.PathMapper().ToSandbox(resolved)
		if err != nil {
			return "", err
		}
		data, err := tc.Sandbox.ReadFile(tc.Context, sp)
		return string(data), err
	}
	data, err := os.ReadFile(resolved)
	return string(data), err
}

// MultiEditTool implements "multiedit": a sequence of find/replace edits
// applied to one file, all-or-nothing.
type MultiEditTool struct{}

func (MultiEditTool) ID() string          { return "multiedit" }
func (MultiEditTool) Description() string { return "Apply a sequence of find/replace edits to one file atomically." }
func (MultiEditTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string"},
			"edits": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {"old_string": {"type": "string"}, "new_string": {"type": "string"}},
					"required": ["old_string", "new_string"]
				}
			}
		},
		"required": ["file_path", "edits"]
	}`)
}

func (MultiEditTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var params struct {
		FilePath string `json:"file_path"`
		Edits    []struct {
			OldString string `json:"old_string"`
			NewString string `json:"new_string"`
		} `json:"edits"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Output{}, err
	}

	resolved, err := resolveInRoot(tc.RootDir, params.FilePath)
	if err != nil {
		return Output{}, err
	}
	if tc.FileTimes != nil {
		if err := tc.FileTimes.AssertNotModified(tc.SessionID, resolved); err != nil {
			return Output{}, fmt.Errorf("concurrent edit detected, re-read %s before editing: %w", resolved, err)
		}
	}

	current, err := readCurrent(tc, resolved)
	if err != nil {
		return Output{}, err
	}
	for i, e := range params.Edits {
		if strings.Count(current, e.OldString) != 1 {
			return Output{}, fmt.Errorf("toolreg: edit %d: old_string must match exactly once", i)
		}
		current = strings.Replace(current, e.OldString, e.NewString, 1)
	}
	return writeLike(tc, params.FilePath, current)
}

// PatchTool implements "patch": apply a unified-diff-style patch to a
// file. A minimal subset is supported: single-hunk context patches, since
// the spec does not mandate full unified-diff fidelity, only that patch
// goes through the same write contract as the other mutating tools.
type PatchTool struct{}

func (PatchTool) ID() string          { return "patch" }
func (PatchTool) Description() string { return "Apply a unified diff hunk to a file." }
func (PatchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"file_path": {"type": "string"}, "diff": {"type": "string"}},
		"required": ["file_path", "diff"]
	}`)
}

func (PatchTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var params struct {
		FilePath string `json:"file_path"`
		Diff     string `json:"diff"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Output{}, err
	}

	resolved, err := resolveInRoot(tc.RootDir, params.FilePath)
	if err != nil {
		return Output{}, err
	}
	if tc.FileTimes != nil {
		if err := tc.FileTimes.AssertNotModified(tc.SessionID, resolved); err != nil {
			return Output{}, fmt.Errorf("concurrent edit detected, re-read %s before patching: %w", resolved, err)
		}
	}

	current, err := readCurrent(tc, resolved)
	if err != nil {
		return Output{}, err
	}
	updated, err := applyUnifiedHunk(current, params.Diff)
	if err != nil {
		return Output{}, err
	}
	return writeLike(tc, params.FilePath, updated)
}

// applyUnifiedHunk applies a single "-"/"+"/" " context hunk (no @@
// header parsing beyond skipping it) by locating the contiguous run of
// context+removed lines in the original content and replacing it with the
// context+added lines.
func applyUnifiedHunk(original, diff string) (string, error) {
	var oldLines, newLines []string
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			continue
		case strings.HasPrefix(line, "-"):
			oldLines = append(oldLines, line[1:])
		case strings.HasPrefix(line, "+"):
			newLines = append(newLines, line[1:])
		case strings.HasPrefix(line, " "):
			rest := line[1:]
			oldLines = append(oldLines, rest)
			newLines = append(newLines, rest)
		}
	}
	if len(oldLines) == 0 {
		return "", errors.New("toolreg: patch diff has no context or removed lines to anchor on")
	}
	oldBlock := strings.Join(oldLines, "\n")
	newBlock := strings.Join(newLines, "\n")
	if strings.Count(original, oldBlock) != 1 {
		return "", errors.New("toolreg: patch hunk does not match file content exactly once")
	}
	return strings.Replace(original, oldBlock, newBlock, 1), nil
}
