package sandbox

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:embed js/harness.js
var harnessSource string

// DockerSandbox runs code with node inside a throwaway Docker container.
type DockerSandbox struct {
	Policy Policy
	Logger *slog.Logger

	// Binary is the docker CLI to invoke. Defaults to "docker".
	Binary string
}

// NewDockerSandbox creates a sandbox with the given policy.
func NewDockerSandbox(policy Policy) *DockerSandbox {
	return &DockerSandbox{Policy: policy, Logger: slog.Default(), Binary: "docker"}
}

func (d *DockerSandbox) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	image := d.Policy.Image
	if !d.Policy.IsImageAllowed(image) {
		return nil, fmt.Errorf("%w: %q", ErrImageNotAllowed, image)
	}

	// Create a temp dir for the code and the harness
	tmpDir, err := os.MkdirTemp("", "gradebox-sandbox-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := os.WriteFile(filepath.Join(tmpDir, "code"), []byte(opts.Code), 0o644); err != nil {
		return nil, fmt.Errorf("writing code file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "harness.js"), []byte(renderHarness()), 0o644); err != nil {
		return nil, fmt.Errorf("writing harness file: %w", err)
	}

	timeout := d.Policy.timeoutFor(opts)
	name := "gradebox-" + uuid.NewString()
	args := d.runArgs(name, tmpDir, image)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, d.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() != nil {
		// Killing the CLI client leaves the container running
		d.kill(name)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res := timeoutResult()
		res.Duration = duration
		d.log(res, timeout)
		return res, nil
	}

	res, perr := parseHarnessOutput(stdout.String())
	if perr != nil {
		if err != nil {
			if _, ok := err.(*exec.ExitError); !ok {
				return nil, fmt.Errorf("running docker: %w", err)
			}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = perr.Error()
		}
		res = errorResult(msg)
	}
	res.Duration = duration
	d.log(res, timeout)
	return res, nil
}

func (d *DockerSandbox) runArgs(name, dir, image string) []string {
	args := []string{
		"run", "--rm",
		"--name", name,
		"--memory", d.Policy.MaxMemory,
		"-v", dir + ":/workspace:ro",
		"-w", "/workspace",
	}
	if !d.Policy.Network {
		args = append(args, "--network=none")
	}
	if d.Policy.MaxCallStackSize > 0 {
		args = append(args, image, "node", fmt.Sprintf("--stack-size=%d", d.Policy.MaxCallStackSize), "/workspace/harness.js")
		return args
	}
	return append(args, image, "node", "/workspace/harness.js")
}

func (d *DockerSandbox) kill(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if out, err := exec.CommandContext(ctx, d.binary(), "kill", name).CombinedOutput(); err != nil {
		d.logger().Warn("docker kill failed", "container", name, "error", err, "output", strings.TrimSpace(string(out)))
	}
}

func (d *DockerSandbox) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return "docker"
}

func (d *DockerSandbox) log(res *ExecResult, timeout time.Duration) {
	d.logger().Debug("sandbox exec",
		"backend", "docker",
		"image", d.Policy.Image,
		"outcome", res.Type,
		"duration", res.Duration,
		"timeout", timeout,
	)
}

func (d *DockerSandbox) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func renderHarness() string {
	return strings.NewReplacer(
		"__NO_OUTPUT__", NoOutputText,
		"__ERROR_PREFIX__", ErrorPrefix,
	).Replace(harnessSource)
}

// parseHarnessOutput reads the result the harness prints as its last line.
func parseHarnessOutput(stdout string) (*ExecResult, error) {
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	last := lines[len(lines)-1]
	var res ExecResult
	if err := json.Unmarshal([]byte(last), &res); err != nil {
		return nil, fmt.Errorf("harness produced no result")
	}
	switch res.Type {
	case OutcomeSuccess, OutcomeError:
		return &res, nil
	default:
		return nil, fmt.Errorf("harness reported unknown outcome %q", res.Type)
	}
}
