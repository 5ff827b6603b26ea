package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Docker implements SandboxRuntime backed by a single long-lived
// container, shelling out to the `docker` CLI via os/exec — grounded on
// the teacher's internal/tools/sandbox/executor.go, which takes the same
// approach rather than a Docker Go SDK.
type Docker struct {
	id          string
	image       string
	containerID string
	mapper      *PathMapper
	networkOn   bool
	status      Status
	started     time.Time
}

// NewDocker creates a Docker-backed sandbox that will mount hostRoot at
// sandboxRoot (read-write) inside the container once Start is called.
func NewDocker(id, image, hostRoot, sandboxRoot string, networkEnabled bool) *Docker {
	return &Docker{
		id:        id,
		image:     image,
		mapper:    NewPathMapper(hostRoot, sandboxRoot),
		networkOn: networkEnabled,
		status:    StatusStopped,
	}
}

func (d *Docker) ID() string               { return d.id }
func (d *Docker) RuntimeType() RuntimeType { return RuntimeDocker }
func (d *Docker) PathMapper() *PathMapper  { return d.mapper }

func (d *Docker) Status(ctx context.Context) (Status, error) { return d.status, nil }

func (d *Docker) Info(ctx context.Context) (Info, error) {
	return Info{ID: d.id, Type: RuntimeDocker, Status: d.status, Image: d.image, Started: d.started}, nil
}

func (d *Docker) IsReady(ctx context.Context) bool {
	return d.status == StatusRunning && d.containerID != ""
}

// Start creates and runs a detached container with the workspace bind
// mounted read-write and the sandbox kept alive via a sleep loop, so
// subsequent Execute calls can `docker exec` into it.
func (d *Docker) Start(ctx context.Context) error {
	d.status = StatusStarting

	args := []string{"run", "-d", "--rm"}
	if !d.networkOn {
		args = append(args, "--network", "none")
	}
	args = append(args,
		"--pids-limit", "100",
		"-v", fmt.Sprintf("%s:%s:rw", d.mapper.HostRoot(), d.mapper.SandboxRoot()),
		"-w", d.mapper.SandboxRoot(),
		d.image,
		"sh", "-c", "sleep infinity",
	)

	out, err := runDockerCommand(ctx, args, "")
	if err != nil {
		d.status = StatusError
		return fmt.Errorf("sandbox: docker run: %w", err)
	}
	containerID := strings.TrimSpace(out.Stdout)
	if containerID == "" {
		d.status = StatusError
		return errors.New("sandbox: docker run returned empty container id")
	}

	d.containerID = containerID
	d.status = StatusRunning
	d.started = time.Now()
	return nil
}

// Stop removes the backing container.
func (d *Docker) Stop(ctx context.Context) error {
	if d.containerID == "" {
		d.status = StatusStopped
		return nil
	}
	_, err := runDockerCommand(ctx, []string{"rm", "-f", d.containerID}, "")
	d.containerID = ""
	d.status = StatusStopped
	return err
}

// Execute runs cmd inside the running container via `docker exec`,
// enforcing timeout by racing the child process against a timer: on
// expiry the process is killed (CommandContext does this automatically)
// and ErrTimeout is returned, per §4.4's command execution contract.
func (d *Docker) Execute(ctx context.Context, cmd []string, workdir string, timeout time.Duration, caps ExecCaps) (ExecResult, error) {
	if !d.IsReady(ctx) {
		return ExecResult{}, errors.New("sandbox: docker runtime not started")
	}
	if len(cmd) == 0 {
		return ExecResult{}, errEmptyCommand
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := []string{"exec"}
	if workdir != "" {
		args = append(args, "-w", workdir)
	}
	for _, e := range defaultEnv {
		args = append(args, "-e", e)
	}
	args = append(args, d.containerID)
	args = append(args, cmd...)

	result, err := runDockerCommand(runCtx, args, "")
	if runCtx.Err() == context.DeadlineExceeded {
		return result, ErrTimeout
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Success = false
			return result, nil
		}
		return result, err
	}
	result.Stdout = d.mapper.RewriteOutput(result.Stdout)
	result.Stderr = d.mapper.RewriteOutput(result.Stderr)
	result.Success = true
	return result, nil
}

func (d *Docker) ReadFile(ctx context.Context, path string) ([]byte, error) {
	res, err := runDockerCommand(ctx, []string{"exec", d.containerID, "cat", path}, "")
	if err != nil {
		return nil, err
	}
	return []byte(res.Stdout), nil
}

func (d *Docker) WriteFile(ctx context.Context, path string, data []byte, mode fs.FileMode) error {
	args := []string{"exec", "-i", d.containerID, "sh", "-c", fmt.Sprintf("cat > %s", shellQuote(path))}
	_, err := runDockerCommand(ctx, args, string(data))
	return err
}

func (d *Docker) PathExists(ctx context.Context, path string) (bool, error) {
	_, err := runDockerCommand(ctx, []string{"exec", d.containerID, "test", "-e", path}, "")
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

func (d *Docker) Metadata(ctx context.Context, path string) (fs.FileInfo, error) {
	return nil, errors.New("sandbox: Metadata is not supported across docker exec; use Execute with stat")
}

func (d *Docker) ReadDir(ctx context.Context, path string) ([]DirEntry, error) {
	res, err := runDockerCommand(ctx, []string{"exec", d.containerID, "sh", "-c", fmt.Sprintf("ls -1A %s", shellQuote(path))}, "")
	if err != nil {
		return nil, err
	}
	var entries []DirEntry
	for _, name := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if name == "" {
			continue
		}
		entries = append(entries, DirEntry{Name: name})
	}
	return entries, nil
}

func (d *Docker) CreateDirAll(ctx context.Context, path string) error {
	_, err := runDockerCommand(ctx, []string{"exec", d.containerID, "mkdir", "-p", path}, "")
	return err
}

func (d *Docker) RemoveFile(ctx context.Context, path string) error {
	_, err := runDockerCommand(ctx, []string{"exec", d.containerID, "rm", "-f", path}, "")
	return err
}

func (d *Docker) RemoveDir(ctx context.Context, path string, recursive bool) error {
	args := []string{"exec", d.containerID, "rm"}
	if recursive {
		args = append(args, "-rf")
	} else {
		args = append(args, "-d")
	}
	args = append(args, path)
	_, err := runDockerCommand(ctx, args, "")
	return err
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func runDockerCommand(ctx context.Context, args []string, stdin string) (ExecResult, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	return result, err
}

// ContainerStats is the subset of `docker stats --no-stream --format
// '{{json .}}'` output the resource monitor cares about.
type ContainerStats struct {
	CPUPerc    float64
	MemBytes   int64
	MemLimit   int64
	PIDs       int
}

// ParseDockerStatsJSON parses one line of `docker stats --no-stream
// --format '{{json .}}'` output, per §4.4's "parses stats --no-stream-style
// output" contract.
func ParseDockerStatsJSON(line string) (ContainerStats, error) {
	var raw struct {
		CPUPerc string `json:"CPUPerc"`
		MemUsage string `json:"MemUsage"`
		PIDs    string `json:"PIDs"`
	}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return ContainerStats{}, fmt.Errorf("sandbox: parsing docker stats: %w", err)
	}

	stats := ContainerStats{}
	stats.CPUPerc, _ = parsePercent(raw.CPUPerc)
	stats.MemBytes, stats.MemLimit = parseMemUsage(raw.MemUsage)
	if n, err := strconv.Atoi(strings.TrimSpace(raw.PIDs)); err == nil {
		stats.PIDs = n
	}
	return stats, nil
}

func parsePercent(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	return strconv.ParseFloat(s, 64)
}

// parseMemUsage parses docker's "12.3MiB / 512MiB" MemUsage format into
// byte counts.
func parseMemUsage(s string) (used, limit int64) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	return parseByteSize(parts[0]), parseByteSize(parts[1])
}

func parseByteSize(s string) int64 {
	s = strings.TrimSpace(s)
	units := []struct {
		suffix string
		mult   int64
	}{
		{"GiB", 1 << 30}, {"MiB", 1 << 20}, {"KiB", 1 << 10},
		{"GB", 1e9}, {"MB", 1e6}, {"KB", 1e3}, {"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			n, err := strconv.ParseFloat(strings.TrimSuffix(s, u.suffix), 64)
			if err != nil {
				return 0
			}
			return int64(n * float64(u.mult))
		}
	}
	return 0
}
