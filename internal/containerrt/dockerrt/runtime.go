// Package dockerrt implements containerrt.Runtime directly against the
// Docker Engine API, the second concrete Container Runtime adapter
// spec.md §6 calls for ("sufficient to implement against any
// OCI-compatible daemon"). It is grounded on the DockerClient interface
// and container-state handling in
// yenhunghuang-repo-onboarding-copilot/internal/security/sandbox/lifecycle.go,
// generalized from that package's kill/inspect/wait subset to the full
// create/start/stop/remove/list/stats/pull/exec-attach surface the port
// requires.
package dockerrt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/memstack/sandboxcore/internal/containerrt"
	"github.com/memstack/sandboxcore/internal/sberrors"
	"github.com/memstack/sandboxcore/internal/types"
)

// Runtime implements containerrt.Runtime against the Docker Engine API.
type Runtime struct {
	cli *client.Client
}

// New wraps an already-constructed Docker API client.
func New(cli *client.Client) *Runtime {
	return &Runtime{cli: cli}
}

// NewFromEnv builds a Runtime using the standard DOCKER_HOST/DOCKER_*
// environment variables, matching client.NewClientWithOpts(client.
// FromEnv) convention.
func NewFromEnv() (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("dockerrt: %w", err)
	}
	return New(cli), nil
}

func (r *Runtime) Create(ctx context.Context, spec containerrt.CreateSpec) (types.Container, error) {
	if ok, err := r.ImageExists(ctx, spec.Image); err == nil && !ok {
		if err := r.PullImage(ctx, spec.Image); err != nil {
			return types.Container{}, sberrors.ContainerRuntimeError("pull", err)
		}
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	exposed, bindings := portBindings(spec.Ports)

	hostCfg := &container.HostConfig{
		PortBindings: bindings,
		CapDrop:      []string{"ALL"},
		SecurityOpt:  []string{"no-new-privileges"},
		RestartPolicy: container.RestartPolicy{
			Name:              "on-failure",
			MaximumRetryCount: clampRetries(spec.MaxRetryCount),
		},
		NetworkMode: networkMode(spec.NetworkMode),
	}
	if spec.MemoryLimit != "" {
		if bytes, err := parseMemory(spec.MemoryLimit); err == nil {
			hostCfg.Resources.Memory = bytes
		}
	}
	if spec.CPULimit > 0 {
		hostCfg.Resources.NanoCPUs = int64(spec.CPULimit * 1e9)
	}
	if spec.ProjectPath != "" {
		hostCfg.Binds = []string{fmt.Sprintf("%s:/workspace:rw", spec.ProjectPath)}
	}

	containerCfg := &container.Config{
		Image:        spec.Image,
		Env:          env,
		Labels:       spec.Labels,
		ExposedPorts: exposed,
		WorkingDir:   "/workspace",
	}

	resp, err := r.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return types.Container{}, sberrors.ContainerRuntimeError("create", err)
	}

	return types.Container{
		RuntimeID: resp.ID,
		Name:      spec.Name,
		State:     types.ContainerCreated,
		Labels:    spec.Labels,
		Ports:     spec.Ports,
		CreatedAt: time.Now(),
	}, nil
}

func clampRetries(n int) int {
	if n <= 0 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

func networkMode(m types.NetworkMode) container.NetworkMode {
	if m == "" {
		return container.NetworkMode(types.NetworkBridge)
	}
	return container.NetworkMode(m)
}

func portBindings(ports types.PortTriplet) (map[string]struct{}, map[string][]string) {
	exposed := map[string]struct{}{
		fmt.Sprintf("%d/tcp", containerrt.ContainerMCPPort):      {},
		fmt.Sprintf("%d/tcp", containerrt.ContainerDesktopPort):  {},
		fmt.Sprintf("%d/tcp", containerrt.ContainerTerminalPort): {},
	}
	bindings := map[string][]string{
		fmt.Sprintf("%d/tcp", containerrt.ContainerMCPPort):      {strconv.Itoa(ports.MCP)},
		fmt.Sprintf("%d/tcp", containerrt.ContainerDesktopPort):  {strconv.Itoa(ports.Desktop)},
		fmt.Sprintf("%d/tcp", containerrt.ContainerTerminalPort): {strconv.Itoa(ports.Terminal)},
	}
	return exposed, bindings
}

// parseMemory converts a textual size ("512m", "1g") to bytes.
func parseMemory(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "g"):
		mult = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "g")
	case strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "k"):
		mult = 1024
		s = strings.TrimSuffix(s, "k")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return v * mult, nil
}

func (r *Runtime) Start(ctx context.Context, runtimeID string) error {
	if err := r.cli.ContainerStart(ctx, runtimeID, dockertypes.ContainerStartOptions{}); err != nil {
		return sberrors.ContainerRuntimeError("start", err)
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context, runtimeID string, timeout time.Duration) error {
	var secs *int
	if timeout > 0 {
		s := int(timeout.Seconds())
		secs = &s
	}
	if err := r.cli.ContainerStop(ctx, runtimeID, container.StopOptions{Timeout: secs}); err != nil {
		return sberrors.ContainerRuntimeError("stop", err)
	}
	return nil
}

func (r *Runtime) Remove(ctx context.Context, runtimeID string, force bool) error {
	if err := r.cli.ContainerRemove(ctx, runtimeID, dockertypes.ContainerRemoveOptions{Force: force}); err != nil {
		return sberrors.ContainerRuntimeError("remove", err)
	}
	return nil
}

func (r *Runtime) Get(ctx context.Context, runtimeID string) (types.Container, bool, error) {
	info, err := r.cli.ContainerInspect(ctx, runtimeID)
	if client.IsErrNotFound(err) {
		return types.Container{}, false, nil
	}
	if err != nil {
		return types.Container{}, false, sberrors.ContainerRuntimeError("inspect", err)
	}
	return inspectToContainer(info), true, nil
}

func inspectToContainer(info dockertypes.ContainerJSON) types.Container {
	st := types.ContainerExited
	if info.State != nil {
		switch {
		case info.State.Running:
			st = types.ContainerRunning
		case info.State.Dead:
			st = types.ContainerDead
		case info.State.Status == "created":
			st = types.ContainerCreated
		}
	}
	var labels map[string]string
	if info.Config != nil {
		labels = info.Config.Labels
	}
	created, _ := time.Parse(time.RFC3339Nano, info.Created)
	return types.Container{
		RuntimeID: info.ID,
		Name:      strings.TrimPrefix(info.Name, "/"),
		State:     st,
		Labels:    labels,
		CreatedAt: created,
	}
}

func (r *Runtime) GetBySandboxID(ctx context.Context, sandboxID string) (types.Container, bool, error) {
	f := filters.NewArgs()
	f.Add("label", fmt.Sprintf("%s=%s", types.LabelSandboxID, sandboxID))
	containers, err := r.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return types.Container{}, false, sberrors.ContainerRuntimeError("list", err)
	}
	if len(containers) == 0 {
		return types.Container{}, false, nil
	}
	return r.Get(ctx, containers[0].ID)
}

func (r *Runtime) List(ctx context.Context, projectID, tenantID string) ([]types.Container, error) {
	f := filters.NewArgs()
	f.Add("label", types.LabelSandbox+"=true")
	if projectID != "" {
		f.Add("label", fmt.Sprintf("%s=%s", types.LabelProjectID, projectID))
	}
	if tenantID != "" {
		f.Add("label", fmt.Sprintf("%s=%s", types.LabelTenantID, tenantID))
	}

	containers, err := r.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, sberrors.ContainerRuntimeError("list", err)
	}

	out := make([]types.Container, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		st := types.ContainerExited
		if strings.Contains(strings.ToLower(c.State), "running") {
			st = types.ContainerRunning
		}
		out = append(out, types.Container{
			RuntimeID: c.ID,
			Name:      name,
			State:     st,
			Labels:    c.Labels,
			CreatedAt: time.Unix(c.Created, 0),
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

func (r *Runtime) Stats(ctx context.Context, runtimeID string) (types.ContainerStats, error) {
	resp, err := r.cli.ContainerStatsOneShot(ctx, runtimeID)
	if err != nil {
		return types.ContainerStats{}, sberrors.ContainerRuntimeError("stats", err)
	}
	defer resp.Body.Close()

	var raw dockertypes.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return types.ContainerStats{}, sberrors.ContainerRuntimeError("stats", err)
	}

	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage - raw.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(raw.CPUStats.SystemUsage - raw.PreCPUStats.SystemUsage)
	cpuPercent := 0.0
	if sysDelta > 0 && cpuDelta > 0 {
		cpuPercent = (cpuDelta / sysDelta) * float64(len(raw.CPUStats.CPUUsage.PercpuUsage)) * 100
	}

	memMB := float64(raw.MemoryStats.Usage) / (1024 * 1024)
	memPercent := 0.0
	if raw.MemoryStats.Limit > 0 {
		memPercent = float64(raw.MemoryStats.Usage) / float64(raw.MemoryStats.Limit) * 100
	}

	return types.ContainerStats{CPUPercent: cpuPercent, MemMB: memMB, MemPercent: memPercent}, nil
}

func (r *Runtime) PullImage(ctx context.Context, imageName string) error {
	rc, err := r.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return sberrors.ContainerRuntimeError("pull", err)
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)
	return nil
}

func (r *Runtime) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, _, err := r.cli.ImageInspectWithRaw(ctx, imageName)
	if client.IsErrNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, sberrors.ContainerRuntimeError("image_exists", err)
	}
	return true, nil
}

func (r *Runtime) ExecAttach(ctx context.Context, runtimeID string, opts containerrt.ExecAttachOptions) error {
	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	execResp, err := r.cli.ContainerExecCreate(ctx, runtimeID, dockertypes.ExecConfig{
		Cmd:          opts.Cmd,
		Env:          env,
		Tty:          opts.TTY,
		AttachStdin:  opts.Stdin != nil,
		AttachStdout: opts.Stdout != nil,
		AttachStderr: opts.Stderr != nil,
	})
	if err != nil {
		return sberrors.ContainerRuntimeError("exec_attach", err)
	}

	hijacked, err := r.cli.ContainerExecAttach(ctx, execResp.ID, dockertypes.ExecStartCheck{Tty: opts.TTY})
	if err != nil {
		return sberrors.ContainerRuntimeError("exec_attach", err)
	}
	defer hijacked.Close()

	if opts.Stdin != nil {
		go func() { _, _ = io.Copy(hijacked.Conn, opts.Stdin) }()
	}
	if opts.Stdout != nil {
		_, _ = io.Copy(opts.Stdout, hijacked.Reader)
	}
	return nil
}
