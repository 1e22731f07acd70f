package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/manthysbr/gridjob/internal/core/domain"
	"github.com/manthysbr/gridjob/internal/core/ports"
)

const (
	containerWorkDir = "/workspace"
	inputFileEnv     = "GRIDJOB_INPUT_FILE"
	dryRunJobNumber  = "1"
)

// WorkAreas resolves and creates local work area directories.
type WorkAreas interface {
	PrepareWorkArea(workArea string) (string, error)
}

// DryRunner runs the wrapper script of a descriptor on its first input unit in
// a local container, under the descriptor's memory and runtime limits.
type DryRunner struct {
	logger    *slog.Logger
	cli       *client.Client
	image     string
	workAreas WorkAreas
}

// NewDryRunner creates a Docker backed dry runner
func NewDryRunner(logger *slog.Logger, image string, workAreas WorkAreas) (*DryRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DryRunner{logger: logger, cli: cli, image: image, workAreas: workAreas}, nil
}

// Ensure DryRunner implements DryRunner
var _ ports.DryRunner = (*DryRunner)(nil)

func (r *DryRunner) Close() error {
	return r.cli.Close()
}

// containerConfigs builds the container and host configuration for one unit.
// hostDir is mounted as the working directory, so the wrapper sees the card,
// the analysis tarball and its work area the way a grid sandbox would.
func containerConfigs(d *domain.JobDescriptor, img, hostDir, input string) (*container.Config, *container.HostConfig) {
	cmd := append([]string{"sh", d.ScriptExe(), dryRunJobNumber}, d.ScriptArgs()...)

	cfg := &container.Config{
		Image:      img,
		Cmd:        cmd,
		WorkingDir: containerWorkDir,
		Env: []string{
			fmt.Sprintf("%s=%s", inputFileEnv, input),
		},
		Labels: map[string]string{
			"gridjob.managed":      "true",
			"gridjob.request_name": d.RequestName(),
		},
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: hostDir,
				Target: containerWorkDir,
			},
		},
		Resources: container.Resources{
			Memory: int64(d.MaxMemoryMB()) * 1024 * 1024,
		},
	}
	return cfg, hostCfg
}

func (r *DryRunner) Run(ctx context.Context, d *domain.JobDescriptor) (domain.DryRunResult, error) {
	inputs := d.UserInputFiles()
	if len(inputs) == 0 {
		return domain.DryRunResult{}, domain.ErrNoInputUnits
	}
	result := domain.DryRunResult{Input: inputs[0]}

	dir, err := r.workAreas.PrepareWorkArea(d.WorkArea())
	if err != nil {
		return result, err
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(d.MaxJobRuntimeMin())*time.Minute)
	defer cancel()

	cfg, hostCfg := containerConfigs(d, r.image, filepath.Dir(dir), result.Input)
	name := "gridjob-dryrun-" + uuid.New().String()

	resp, err := r.cli.ContainerCreate(runCtx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if client.IsErrNotFound(err) {
		reader, pullErr := r.cli.ImagePull(runCtx, r.image, image.PullOptions{})
		if pullErr != nil {
			return result, fmt.Errorf("failed to pull image %s: %w", r.image, pullErr)
		}
		io.Copy(io.Discard, reader)
		reader.Close()
		resp, err = r.cli.ContainerCreate(runCtx, cfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	}
	if err != nil {
		return result, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		// Removal uses a fresh context: runCtx may already be expired.
		rmCtx, rmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer rmCancel()
		if err := r.cli.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			r.logger.Warn("failed to remove dry run container", "container", name, "error", err)
		}
	}()

	start := time.Now()
	if err := r.cli.ContainerStart(runCtx, resp.ID, container.StartOptions{}); err != nil {
		return result, fmt.Errorf("failed to start container: %w", err)
	}
	r.logger.Info("dry run started", "container", name, "input", result.Input, "memory_mb", d.MaxMemoryMB())

	waitCh, errCh := r.cli.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	select {
	case status := <-waitCh:
		result.ExitCode = status.StatusCode
	case err := <-errCh:
		result.Duration = time.Since(start)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return result, fmt.Errorf("dry run exceeded %d minutes: %w", d.MaxJobRuntimeMin(), err)
		}
		return result, fmt.Errorf("failed waiting for container: %w", err)
	}
	result.Duration = time.Since(start)

	logs, err := r.cli.ContainerLogs(runCtx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return result, fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, logs); err != nil {
		return result, fmt.Errorf("failed to demultiplex logs: %w", err)
	}
	result.Logs = buf.String()

	r.logger.Info("dry run finished", "container", name, "exit_code", result.ExitCode, "duration", result.Duration)
	return result, nil
}
