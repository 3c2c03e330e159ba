// Copyright (C) 2025 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package execution

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"runtime"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/oklog/ulid/v2"

	"github.com/petmal/codegrade/config"
	"github.com/petmal/codegrade/pkg/logging"
)

const (
	containerCopyDir = "/tmp"
	containerWorkDir = "/tmp/codegrade"
)

// DockerService runs every program in a fresh, network-less Docker container.
type DockerService struct {
	client      *client.Client
	image       string
	interpreter string
	env         map[string]string
	maxMemoryMB *int
	cpuPercent  *int

	leftovers sync.Map // container ID -> container name
}

// NewDockerService creates a Docker backend using the Docker environment settings of the host.
func NewDockerService(cfg config.DockerBackendConfig) (*DockerService, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Docker client: %v", ErrServiceUnavailable, err)
	}
	return newDockerService(cli, cfg), nil
}

func newDockerService(cli *client.Client, cfg config.DockerBackendConfig) *DockerService {
	return &DockerService{
		client:      cli,
		image:       cfg.GetImage(),
		interpreter: cfg.GetInterpreter(),
		env:         cfg.Env,
		maxMemoryMB: cfg.MaxMemoryMB,
		cpuPercent:  cfg.CPUPercent,
	}
}

// Name returns the backend name.
func (d *DockerService) Name() string {
	return config.DOCKER
}

// ValidateImage ensures the configured Docker image is available locally.
func (d *DockerService) ValidateImage(ctx context.Context) error {
	if _, err := d.client.ImageInspect(ctx, d.image); err != nil {
		switch {
		case errdefs.IsNotFound(err):
			return fmt.Errorf("%w: docker image %q is not available locally. Pull the image with `docker pull %s` and try again", ErrServiceUnavailable, d.image, d.image)
		default:
			return fmt.Errorf("%w: failed to inspect docker image %q: %v", ErrServiceUnavailable, d.image, err)
		}
	}
	return nil
}

// Reset removes containers that previous runs failed to clean up.
func (d *DockerService) Reset(ctx context.Context) error {
	var failed []string
	d.leftovers.Range(func(key, value interface{}) bool {
		containerID := key.(string)
		if err := d.removeContainer(ctx, containerID); err != nil {
			failed = append(failed, value.(string))
		}
		return true
	})
	if len(failed) > 0 {
		return fmt.Errorf("failed to remove leftover containers: %v", failed)
	}
	return nil
}

// Close closes the Docker client connection.
func (d *DockerService) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

// Execute runs program in a new container and talks to it over the attached standard streams.
func (d *DockerService) Execute(ctx context.Context, logger logging.Logger, program string, caps Capabilities) (Outcome, error) {
	env := make([]string, 0, len(d.env)+1)
	env = append(env, "PYTHONIOENCODING=utf-8")
	for k, v := range d.env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	cmd := []string{d.interpreter, "-u", path.Join(containerWorkDir, harnessFileName), path.Join(containerWorkDir, programFileName)}
	containerConfig := &container.Config{
		Image:        d.image,
		Cmd:          cmd,
		Env:          env,
		WorkingDir:   containerCopyDir,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		OpenStdin:    true,
		StdinOnce:    true,
		Tty:          false,
	}

	hostConfig := &container.HostConfig{
		AutoRemove:    false, // manually remove container after the run
		NetworkMode:   network.NetworkNone,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
	}
	if d.maxMemoryMB != nil {
		hostConfig.Memory = int64(*d.maxMemoryMB) * 1024 * 1024
	}
	if d.cpuPercent != nil {
		// NanoCPUs = (numCPUs * percent / 100) * 1e9
		hostConfig.NanoCPUs = int64(runtime.NumCPU()) * int64(*d.cpuPercent) * 10000000
	}

	containerName := fmt.Sprintf("codegrade-run-%s", ulid.Make().String())
	createResp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w: failed to create container (image: %q): %v", ErrServiceUnavailable, ErrRetryable, d.image, err)
	}
	logger.Message(ctx, logging.LevelTrace, "created container %q (ID: %s)", containerName, createResp.ID)
	d.leftovers.Store(createResp.ID, containerName)

	// The run context may already be done; removal gets its own budget.
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := d.removeContainer(removeCtx, createResp.ID); err != nil {
			logger.Error(ctx, logging.LevelWarn, err, "failed to remove container %q after execution", containerName)
		}
	}()

	archive, err := programArchive(program)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: failed to package program: %v", ErrServiceUnavailable, err)
	}
	if err := d.client.CopyToContainer(ctx, createResp.ID, containerCopyDir, archive, container.CopyToContainerOptions{}); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w: failed to copy program into container: %v", ErrServiceUnavailable, ErrRetryable, err)
	}

	attachResp, err := d.client.ContainerAttach(ctx, createResp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w: failed to attach to container: %v", ErrServiceUnavailable, ErrRetryable, err)
	}
	defer attachResp.Close()

	// Unblock the stream reader when the run is stopped.
	stop := context.AfterFunc(ctx, attachResp.Close)
	defer stop()

	if err := d.client.ContainerStart(ctx, createResp.ID, container.StartOptions{}); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w: failed to start container: %v", ErrServiceUnavailable, ErrRetryable, err)
	}

	stdoutReader, stdoutWriter := io.Pipe()
	var stderr bytes.Buffer
	copyDone := make(chan struct{})
	go func() {
		defer close(copyDone)
		_, err := stdcopy.StdCopy(stdoutWriter, &stderr, attachResp.Reader)
		stdoutWriter.CloseWithError(err)
	}()

	outcome := serve(ctx, logger, stdoutReader, attachResp.Conn, caps)
	_ = attachResp.CloseWrite()
	_ = stdoutReader.Close()

	if ctx.Err() == nil {
		statusCh, errCh := d.client.ContainerWait(ctx, createResp.ID, container.WaitConditionNotRunning)
		select {
		case err := <-errCh:
			if err != nil {
				logger.Error(ctx, logging.LevelDebug, err, "failed waiting for container %q to stop", containerName)
			}
		case status := <-statusCh:
			logger.Message(ctx, logging.LevelTrace, "container %q exited with code %d", containerName, status.StatusCode)
		case <-ctx.Done():
		}
	}
	<-copyDone
	if stderr.Len() > 0 {
		logger.Message(ctx, logging.LevelDebug, "container stderr:\n%s", logging.FormatLogOutput(stderr.String()))
	}

	return outcome, nil
}

func (d *DockerService) removeContainer(ctx context.Context, containerID string) error {
	err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	switch {
	case err == nil, errdefs.IsConflict(err), errdefs.IsNotFound(err):
		// Container removed successfully or already removed.
		d.leftovers.Delete(containerID)
		return nil
	default:
		return err
	}
}

// programArchive packs the harness and the program into a tar stream rooted at the container copy directory.
func programArchive(program string) (io.Reader, error) {
	var buffer bytes.Buffer
	tw := tar.NewWriter(&buffer)
	dir := path.Base(containerWorkDir)
	if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: dir + "/", Mode: 0o755}); err != nil {
		return nil, err
	}
	files := []struct {
		name    string
		content []byte
	}{
		{harnessFileName, harnessScript},
		{programFileName, []byte(program)},
	}
	for _, file := range files {
		header := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     path.Join(dir, file.name),
			Mode:     0o644,
			Size:     int64(len(file.content)),
		}
		if err := tw.WriteHeader(header); err != nil {
			return nil, err
		}
		if _, err := tw.Write(file.content); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buffer, nil
}
