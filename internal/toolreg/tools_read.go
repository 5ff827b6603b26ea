package toolreg

import (
	"encoding/json"
	"fmt"
	"os"
)

// ReadTool implements "read": returns a file's content, recording the read
// time via the File-Time Tracker once the content is read, per §4.2's
// mandatory behavior.
type ReadTool struct{}

func (ReadTool) ID() string          { return "read" }
func (ReadTool) Description() string { return "Read the content of a file." }
func (ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}},
		"required": ["path"]
	}`)
}

func (ReadTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Output{}, err
	}

	path, err := resolveInRoot(tc.RootDir, params.Path)
	if err != nil {
		return Output{}, err
	}

	var data []byte
	if tc.Sandbox != nil {
		sandboxPath, err := tc.Sandbox.PathMapper().ToSandbox(path)
		if err != nil {
			return Output{}, err
		}
		data, err = tc.Sandbox.ReadFile(tc.Context, sandboxPath)
		if err != nil {
			return Output{}, err
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return Output{}, err
		}
	}

	if tc.FileTimes != nil {
		tc.FileTimes.RecordRead(tc.SessionID, path)
	}

	return Output{Text: string(data), Metadata: map[string]any{"path": path, "bytes": len(data)}}, nil
}

func resolveInRoot(root, path string) (string, error) {
	abs, err := absWithin(root, path)
	if err != nil {
		return "", fmt.Errorf("toolreg: %w", err)
	}
	return abs, nil
}
