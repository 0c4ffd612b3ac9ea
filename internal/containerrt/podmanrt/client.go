// Package podmanrt implements containerrt.Runtime by shelling out to the
// podman CLI binary, adapted from the teacher's internal/podman.Client:
// same exec.Command/Run/RunJSON plumbing and dedicated-auth-file setup,
// generalized from opensandbox's fixed single-container shape to the
// containerrt.CreateSpec contract (arbitrary port triplets, network
// modes, and resource ceilings).
package podmanrt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Client wraps the podman CLI for container operations.
type Client struct {
	binaryPath string
	authFile   string
}

// NewClient creates a new podman-backed Client. It verifies podman is
// available on PATH.
func NewClient() (*Client, error) {
	path, err := exec.LookPath("podman")
	if err != nil {
		return nil, fmt.Errorf("podman not found in PATH: %w", err)
	}

	authFile, err := ensureAuthFile()
	if err != nil {
		return nil, fmt.Errorf("failed to set up podman auth: %w", err)
	}

	return &Client{binaryPath: path, authFile: authFile}, nil
}

func ensureAuthFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".config", "sandboxcore")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	authFile := filepath.Join(dir, "auth.json")
	if _, err := os.Stat(authFile); os.IsNotExist(err) {
		if err := os.WriteFile(authFile, []byte(`{"auths":{}}`), 0600); err != nil {
			return "", err
		}
	}
	return authFile, nil
}

// ExecResult holds the output from a podman command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes a podman command and returns the result. stdin/stdout/
// stderr may be nil/unused except for ExecAttach, which streams them
// directly.
func (c *Client) Run(ctx context.Context, args ...string) (*ExecResult, error) {
	full := append([]string{"--authfile", c.authFile}, args...)
	cmd := exec.CommandContext(ctx, c.binaryPath, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("podman exec: %w", err)
	}
	return result, nil
}

// RunStreamed runs podman with stdin/stdout/stderr wired directly to the
// given streams, for interactive exec sessions.
func (c *Client) RunStreamed(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args ...string) error {
	full := append([]string{"--authfile", c.authFile}, args...)
	cmd := exec.CommandContext(ctx, c.binaryPath, full...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// RunJSON runs a podman command and unmarshals its stdout into dest.
func (c *Client) RunJSON(ctx context.Context, dest any, args ...string) error {
	result, err := c.Run(ctx, args...)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("podman %s failed (exit %d): %s", strings.Join(args, " "), result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return json.Unmarshal([]byte(result.Stdout), dest)
}
