package toolreg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/wonop-io/wonopcore/internal/sandbox"
)

// ListTool implements "list": directory listing, routed through the
// Sandbox Runtime when attached.
type ListTool struct{}

func (ListTool) ID() string          { return "list" }
func (ListTool) Description() string { return "List entries in a directory." }
func (ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}},
		"required": ["path"]
	}`)
}

func (ListTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Output{}, err
	}
	resolved, err := resolveInRoot(tc.RootDir, params.Path)
	if err != nil {
		return Output{}, err
	}

	var names []string
	if tc.Sandbox != nil {
		sp, err := tc.Sandbox.PathMapper().ToSandbox(resolved)
		if err != nil {
			return Output{}, err
		}
		entries, err := tc.Sandbox.ReadDir(tc.Context, sp)
		if err != nil {
			return Output{}, err
		}
		for _, e := range entries {
			if e.IsDir {
				names = append(names, e.Name+"/")
			} else {
				names = append(names, e.Name)
			}
		}
	} else {
		entries, err := os.ReadDir(resolved)
		if err != nil {
			return Output{}, err
		}
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name()+"/")
			} else {
				names = append(names, e.Name())
			}
		}
	}
	sort.Strings(names)
	return Output{Text: strings.Join(names, "\n"), Metadata: map[string]any{"path": resolved, "count": len(names)}}, nil
}

// GlobTool implements "glob": filename pattern matching rooted at root_dir
// (or a given subdirectory), via filepath.Glob against the host, or the
// sandbox's find when a runtime is attached.
type GlobTool struct{}

func (GlobTool) ID() string          { return "glob" }
func (GlobTool) Description() string { return "Find files matching a glob pattern." }
func (GlobTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"pattern": {"type": "string"}, "path": {"type": "string"}},
		"required": ["pattern"]
	}`)
}

func (GlobTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Output{}, err
	}
	base := params.Path
	if base == "" {
		base = tc.RootDir
	}
	resolvedBase, err := resolveInRoot(tc.RootDir, base)
	if err != nil {
		return Output{}, err
	}

	if tc.Sandbox != nil {
		sp, err := tc.Sandbox.PathMapper().ToSandbox(resolvedBase)
		if err != nil {
			return Output{}, err
		}
		res, err := tc.Sandbox.Execute(tc.Context, []string{"find", sp, "-name", params.Pattern}, sp, 30*time.Second, sandbox.ExecCaps{})
		if err != nil {
			return Output{}, err
		}
		lines := splitNonEmpty(res.Stdout)
		sort.Strings(lines)
		return Output{Text: strings.Join(lines, "\n"), Metadata: map[string]any{"count": len(lines)}}, nil
	}

	matches, err := filepath.Glob(filepath.Join(resolvedBase, params.Pattern))
	if err != nil {
		return Output{}, err
	}
	sort.Strings(matches)
	return Output{Text: strings.Join(matches, "\n"), Metadata: map[string]any{"count": len(matches)}}, nil
}

// GrepTool implements "grep": content search across root_dir via the
// system grep binary (ripgrep is not used), run through the Sandbox Runtime when
// attached.
type GrepTool struct{}

func (GrepTool) ID() string          { return "grep" }
func (GrepTool) Description() string { return "Search file contents for a regular expression." }
func (GrepTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"pattern": {"type": "string"}, "path": {"type": "string"}},
		"required": ["pattern"]
	}`)
}

func (GrepTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var params struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Output{}, err
	}
	base := params.Path
	if base == "" {
		base = tc.RootDir
	}
	resolvedBase, err := resolveInRoot(tc.RootDir, base)
	if err != nil {
		return Output{}, err
	}

	if tc.Sandbox != nil {
		sp, err := tc.Sandbox.PathMapper().ToSandbox(resolvedBase)
		if err != nil {
			return Output{}, err
		}
		res, err := tc.Sandbox.Execute(tc.Context, []string{"grep", "-rn", params.Pattern, sp}, sp, 30*time.Second, sandbox.ExecCaps{})
		if err != nil {
			return Output{}, err
		}
		out := tc.Sandbox.PathMapper().RewriteOutput(res.Stdout)
		return Output{Text: out}, nil
	}

	cmd := exec.CommandContext(tc.Context, "grep", "-rn", params.Pattern, resolvedBase)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return Output{Text: ""}, nil // grep exit 1 == no matches
		}
		return Output{}, fmt.Errorf("toolreg: grep: %w: %s", err, stderr.String())
	}
	return Output{Text: stdout.String()}, nil
}

// BashTool implements "bash": runs a shell command, routed through the
// Sandbox Runtime when one is attached (the spec's mandatory execution
// path for anything that can touch the filesystem or network).
type BashTool struct{}

func (BashTool) ID() string          { return "bash" }
func (BashTool) Description() string { return "Execute a shell command." }
func (BashTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string"},
			"timeout_seconds": {"type": "integer"}
		},
		"required": ["command"]
	}`)
}

func (BashTool) Execute(tc ToolContext, args json.RawMessage) (Output, error) {
	var params struct {
		Command        string `json:"command"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return Output{}, err
	}
	timeout := 120 * time.Second
	if params.TimeoutSeconds > 0 {
		timeout = time.Duration(params.TimeoutSeconds) * time.Second
	}

	if tc.Sandbox != nil {
		workdir := tc.Cwd
		if workdir == "" {
			workdir = tc.RootDir
		}
		sp, err := tc.Sandbox.PathMapper().ToSandbox(workdir)
		if err != nil {
			return Output{}, err
		}
		res, err := tc.Sandbox.Execute(tc.Context, []string{"sh", "-c", params.Command}, sp, timeout, sandbox.ExecCaps{Network: true})
		if err != nil {
			return Output{}, err
		}
		stdout := tc.Sandbox.PathMapper().RewriteOutput(res.Stdout)
		stderr := tc.Sandbox.PathMapper().RewriteOutput(res.Stderr)
		return Output{Text: stdout, Metadata: map[string]any{"stderr": stderr, "exit_code": res.ExitCode, "success": res.Success}}, nil
	}

	ctx, cancel := context.WithTimeout(tc.Context, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", params.Command)
	cmd.Dir = tc.Cwd
	if cmd.Dir == "" {
		cmd.Dir = tc.RootDir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return Output{}, fmt.Errorf("toolreg: bash: %w", runErr)
		}
	}
	return Output{Text: stdout.String(), Metadata: map[string]any{"stderr": stderr.String(), "exit_code": exitCode, "success": exitCode == 0}}, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
