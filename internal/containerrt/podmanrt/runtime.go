package podmanrt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/sberrors"
	"github.com/memstack/sandboxcore/internal/types"
)

// Runtime implements containerrt.Runtime against a local podman daemon.
type Runtime struct {
	client *Client
}

// New wraps an already-constructed podman Client as a containerrt.Runtime.
func New(client *Client) *Runtime {
	return &Runtime{client: client}
}

// Create provisions a container from spec, matching the teacher's
// DefaultContainerConfig security posture (drop all capabilities,
// no-new-privileges) generalized to the spec's configurable network
// mode and blocked ports.
func (r *Runtime) Create(ctx context.Context, spec containerrt.CreateSpec) (types.Container, error) {
	if ok, err := r.ImageExists(ctx, spec.Image); err == nil && !ok {
		if err := r.PullImage(ctx, spec.Image); err != nil {
			return types.Container{}, sberrors.ContainerRuntimeError("pull", err)
		}
	}

	args := []string{"create", "--name", spec.Name}

	for k, v := range spec.Labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range spec.Env {
		args = append(args, "--env", fmt.Sprintf("%s=%s", k, v))
	}
	if spec.MemoryLimit != "" {
		args = append(args, "--memory", spec.MemoryLimit)
	}
	if spec.CPULimit > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(spec.CPULimit, 'f', -1, 64))
	}

	args = append(args, "--cap-drop", "ALL", "--security-opt", "no-new-privileges")

	networkMode := string(spec.NetworkMode)
	if networkMode == "" {
		networkMode = string(types.NetworkBridge)
	}
	args = append(args, "--network", networkMode)

	for _, p := range spec.BlockedPorts {
		// Podman has no direct "blocked port" primitive; expressed as a
		// firewall-level concern upstream. The runtime records the
		// requester's intent via a label so the Orphan Cleaner / audit
		// tooling can verify it was honored at the network layer.
		args = append(args, "--label", fmt.Sprintf("sandboxcore.blocked_port.%d=true", p))
	}

	if spec.ProjectPath != "" {
		args = append(args, "--volume", fmt.Sprintf("%s:/workspace:rw", spec.ProjectPath))
	}
	args = append(args, "--workdir", "/workspace")

	args = append(args,
		"--publish", fmt.Sprintf("%d:%d/tcp", spec.Ports.MCP, containerrt.ContainerMCPPort),
		"--publish", fmt.Sprintf("%d:%d/tcp", spec.Ports.Desktop, containerrt.ContainerDesktopPort),
		"--publish", fmt.Sprintf("%d:%d/tcp", spec.Ports.Terminal, containerrt.ContainerTerminalPort),
	)

	retries := spec.MaxRetryCount
	if retries <= 0 {
		retries = 1
	}
	if retries > 5 {
		retries = 5
	}
	args = append(args, "--restart", fmt.Sprintf("on-failure:%d", retries))

	args = append(args, spec.Image)

	result, err := r.client.Run(ctx, args...)
	if err != nil {
		return types.Container{}, sberrors.ContainerRuntimeError("create", err)
	}
	if result.ExitCode != 0 {
		return types.Container{}, sberrors.ContainerRuntimeError("create", fmt.Errorf("podman create failed (exit %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr)))
	}

	runtimeID := strings.TrimSpace(result.Stdout)
	return types.Container{
		RuntimeID: runtimeID,
		Name:      spec.Name,
		State:     types.ContainerCreated,
		Labels:    spec.Labels,
		Ports:     spec.Ports,
		CreatedAt: time.Now(),
	}, nil
}

func (r *Runtime) Start(ctx context.Context, runtimeID string) error {
	result, err := r.client.Run(ctx, "start", runtimeID)
	if err != nil {
		return sberrors.ContainerRuntimeError("start", err)
	}
	if result.ExitCode != 0 {
		return sberrors.ContainerRuntimeError("start", fmt.Errorf("podman start failed (exit %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr)))
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context, runtimeID string, timeout time.Duration) error {
	args := []string{"stop"}
	if timeout > 0 {
		args = append(args, "--time", strconv.Itoa(int(timeout.Seconds())))
	}
	args = append(args, runtimeID)

	result, err := r.client.Run(ctx, args...)
	if err != nil {
		return sberrors.ContainerRuntimeError("stop", err)
	}
	if result.ExitCode != 0 {
		return sberrors.ContainerRuntimeError("stop", fmt.Errorf("podman stop failed (exit %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr)))
	}
	return nil
}

func (r *Runtime) Remove(ctx context.Context, runtimeID string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "--force", "--time", "0")
	}
	args = append(args, runtimeID)

	result, err := r.client.Run(ctx, args...)
	if err != nil {
		return sberrors.ContainerRuntimeError("remove", err)
	}
	if result.ExitCode != 0 {
		return sberrors.ContainerRuntimeError("remove", fmt.Errorf("podman rm failed (exit %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr)))
	}
	return nil
}

// inspectEntry mirrors the teacher's ContainerInfo inspect shape.
type inspectEntry struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Status  string `json:"Status"`
		Running bool   `json:"Running"`
	} `json:"State"`
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
	Created string `json:"Created"`
}

func (e *inspectEntry) toContainer() types.Container {
	st := types.ContainerExited
	switch {
	case e.State.Running:
		st = types.ContainerRunning
	case e.State.Status == "dead":
		st = types.ContainerDead
	case e.State.Status == "created":
		st = types.ContainerCreated
	}
	created, _ := time.Parse(time.RFC3339, e.Created)
	return types.Container{
		RuntimeID: e.ID,
		Name:      strings.TrimPrefix(e.Name, "/"),
		State:     st,
		Labels:    e.Config.Labels,
		CreatedAt: created,
	}
}

func (r *Runtime) Get(ctx context.Context, runtimeID string) (types.Container, bool, error) {
	var entries []inspectEntry
	if err := r.client.RunJSON(ctx, &entries, "inspect", runtimeID); err != nil {
		if strings.Contains(err.Error(), "no such") || strings.Contains(err.Error(), "exit 125") {
			return types.Container{}, false, nil
		}
		return types.Container{}, false, sberrors.ContainerRuntimeError("inspect", err)
	}
	if len(entries) == 0 {
		return types.Container{}, false, nil
	}
	return entries[0].toContainer(), true, nil
}

func (r *Runtime) GetBySandboxID(ctx context.Context, sandboxID string) (types.Container, bool, error) {
	entries, err := r.listPS(ctx, fmt.Sprintf("%s=%s", types.LabelSandboxID, sandboxID))
	if err != nil {
		return types.Container{}, false, err
	}
	if len(entries) == 0 {
		return types.Container{}, false, nil
	}
	return r.Get(ctx, entries[0].ID)
}

// psEntry matches podman ps --format json.
type psEntry struct {
	ID     string            `json:"Id"`
	Names  []string          `json:"Names"`
	State  string            `json:"State"`
	Labels map[string]string `json:"Labels"`
}

func (r *Runtime) listPS(ctx context.Context, labelFilter string) ([]psEntry, error) {
	args := []string{"ps", "-a", "--format", "json", "--filter", fmt.Sprintf("label=%s", types.LabelSandbox)}
	if labelFilter != "" {
		args = append(args, "--filter", fmt.Sprintf("label=%s", labelFilter))
	}

	result, err := r.client.Run(ctx, args...)
	if err != nil {
		return nil, sberrors.ContainerRuntimeError("list", err)
	}
	if result.ExitCode != 0 {
		return nil, sberrors.ContainerRuntimeError("list", fmt.Errorf("podman ps failed (exit %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr)))
	}

	output := strings.TrimSpace(result.Stdout)
	if output == "" {
		return nil, nil
	}

	var entries []psEntry
	if strings.HasPrefix(output, "[") {
		if err := json.Unmarshal([]byte(output), &entries); err != nil {
			return nil, sberrors.ContainerRuntimeError("list", err)
		}
		return entries, nil
	}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e psEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, sberrors.ContainerRuntimeError("list", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *Runtime) List(ctx context.Context, projectID, tenantID string) ([]types.Container, error) {
	filter := ""
	switch {
	case projectID != "":
		filter = fmt.Sprintf("%s=%s", types.LabelProjectID, projectID)
	case tenantID != "":
		filter = fmt.Sprintf("%s=%s", types.LabelTenantID, tenantID)
	}

	entries, err := r.listPS(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]types.Container, 0, len(entries))
	for _, e := range entries {
		name := ""
		if len(e.Names) > 0 {
			name = e.Names[0]
		}
		st := types.ContainerExited
		if strings.Contains(strings.ToLower(e.State), "running") {
			st = types.ContainerRunning
		}
		out = append(out, types.Container{
			RuntimeID: e.ID,
			Name:      name,
			State:     st,
			Labels:    e.Labels,
		})
	}
	return out, nil
}

func (r *Runtime) Exists(ctx context.Context, sandboxID string) (bool, error) {
	_, ok, err := r.GetBySandboxID(ctx, sandboxID)
	return ok, err
}

func (r *Runtime) IsRunning(ctx context.Context, runtimeID string) (bool, error) {
	c, ok, err := r.Get(ctx, runtimeID)
	if err != nil || !ok {
		return false, err
	}
	return c.State == types.ContainerRunning, nil
}

type statsEntry struct {
	CPU      string `json:"cpu_percent"`
	MemUsage string `json:"mem_usage"`
}

func (r *Runtime) Stats(ctx context.Context, runtimeID string) (types.ContainerStats, error) {
	result, err := r.client.Run(ctx, "stats", "--no-stream", "--no-reset", "--format", "json", runtimeID)
	if err != nil {
		return types.ContainerStats{}, sberrors.ContainerRuntimeError("stats", err)
	}
	if result.ExitCode != 0 {
		return types.ContainerStats{}, sberrors.ContainerRuntimeError("stats", fmt.Errorf("podman stats failed (exit %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr)))
	}

	var entries []statsEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(result.Stdout)), &entries); err != nil || len(entries) == 0 {
		return types.ContainerStats{}, sberrors.ContainerRuntimeError("stats", fmt.Errorf("no stats entries for %s", runtimeID))
	}

	e := entries[0]
	stats := types.ContainerStats{}
	if v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(e.CPU), "%"), 64); err == nil {
		stats.CPUPercent = v
	}
	if parts := strings.SplitN(e.MemUsage, "/", 2); len(parts) == 2 {
		used := parseBytes(strings.TrimSpace(parts[0]))
		limit := parseBytes(strings.TrimSpace(parts[1]))
		stats.MemMB = used / (1024 * 1024)
		if limit > 0 {
			stats.MemPercent = float64(used) / float64(limit) * 100
		}
	}
	return stats, nil
}

// parseBytes converts human-readable byte strings like "45.2MB",
// "1.5GiB" to bytes, matching the teacher's internal/podman.parseBytes.
func parseBytes(s string) uint64 {
	if s == "" || s == "--" {
		return 0
	}
	multipliers := []struct {
		suffix string
		mult   float64
	}{
		{"KiB", 1024}, {"MiB", 1024 * 1024}, {"GiB", 1024 * 1024 * 1024}, {"TiB", 1024 * 1024 * 1024 * 1024},
		{"kB", 1000}, {"KB", 1000}, {"MB", 1000 * 1000}, {"GB", 1000 * 1000 * 1000}, {"TB", 1000 * 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, m := range multipliers {
		if strings.HasSuffix(s, m.suffix) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, m.suffix)), 64); err == nil {
				return uint64(v * m.mult)
			}
		}
	}
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v
	}
	return 0
}

func (r *Runtime) PullImage(ctx context.Context, image string) error {
	result, err := r.client.Run(ctx, "pull", image)
	if err != nil {
		return sberrors.ContainerRuntimeError("pull", err)
	}
	if result.ExitCode != 0 {
		return sberrors.ContainerRuntimeError("pull", fmt.Errorf("podman pull failed (exit %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr)))
	}
	return nil
}

func (r *Runtime) ImageExists(ctx context.Context, image string) (bool, error) {
	result, err := r.client.Run(ctx, "image", "exists", image)
	if err != nil {
		return false, sberrors.ContainerRuntimeError("image_exists", err)
	}
	return result.ExitCode == 0, nil
}

func (r *Runtime) ExecAttach(ctx context.Context, runtimeID string, opts containerrt.ExecAttachOptions) error {
	args := []string{"exec", "-i"}
	if opts.TTY {
		args = append(args, "-t")
	}
	for k, v := range opts.Env {
		args = append(args, "--env", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, runtimeID)
	args = append(args, opts.Cmd...)

	if err := r.client.RunStreamed(ctx, opts.Stdin, opts.Stdout, opts.Stderr, args...); err != nil {
		return sberrors.ContainerRuntimeError("exec_attach", err)
	}
	return nil
}
