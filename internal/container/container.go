// Package container implements the container runtime client contract
// (component 6): the small set of Docker Engine operations the executor and
// stage-copy engine need — inspect, create-and-start from an image, archive
// transfer, detached exec, and lifecycle control.
package container

import (
	"bytes"
	"context"
	"io"

	"github.com/moby/moby/api/pkg/stdcopy"
	apicontainer "github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"

	"github.com/ctrstack/livepush/internal/livepusherr"
)

// Inspection is the subset of container state livepush's orchestrator and
// executor act on.
type Inspection struct {
	ID      string
	Image   string
	Running bool
}

// ExecResult is the outcome of a detached, non-interactive exec.
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runtime is the container-engine contract every other package in this
// module depends on by interface, never by concrete client, so executor and
// stage-copy tests can run against a fake.
type Runtime interface {
	Inspect(ctx context.Context, containerID string) (Inspection, error)
	StartContainerFromImage(ctx context.Context, image string, cmd []string, env []string) (string, error)
	PutArchive(ctx context.Context, containerID, dstPath string, content io.Reader) error
	GetArchive(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error)
	Exec(ctx context.Context, containerID string, cmd []string) (ExecResult, error)
	ExecStream(ctx context.Context, containerID string, cmd, env []string, onChunk func(data []byte, isStderr bool)) (ExecResult, error)
	Kill(ctx context.Context, containerID, signal string) error
	Start(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string, force bool) error
}

// DockerRuntime implements Runtime against a real Docker Engine API client.
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime builds a runtime from the ambient Docker environment
// (DOCKER_HOST and friends), negotiating the API version against the daemon.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &livepusherr.RuntimeError{Message: "failed to construct docker client", Err: err}
	}
	return &DockerRuntime{cli: cli}, nil
}

func (r *DockerRuntime) Inspect(ctx context.Context, containerID string) (Inspection, error) {
	info, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return Inspection{}, &livepusherr.RuntimeError{Message: "container inspect failed", Err: err}
	}
	running := info.State != nil && info.State.Running
	return Inspection{ID: info.ID, Image: info.Config.Image, Running: running}, nil
}

func (r *DockerRuntime) StartContainerFromImage(ctx context.Context, image string, cmd []string, env []string) (string, error) {
	cfg := &apicontainer.Config{
		Image: image,
		Cmd:   cmd,
		Env:   env,
		Tty:   false,
	}
	resp, err := r.cli.ContainerCreate(ctx, cfg, &apicontainer.HostConfig{}, nil, nil, "")
	if err != nil {
		return "", &livepusherr.RuntimeError{Message: "container create failed", Err: err}
	}
	if err := r.cli.ContainerStart(ctx, resp.ID, apicontainer.StartOptions{}); err != nil {
		return "", &livepusherr.RuntimeError{Message: "container start failed", Err: err}
	}
	return resp.ID, nil
}

func (r *DockerRuntime) PutArchive(ctx context.Context, containerID, dstPath string, content io.Reader) error {
	if err := r.cli.CopyToContainer(ctx, containerID, dstPath, content, apicontainer.CopyToContainerOptions{}); err != nil {
		return &livepusherr.RuntimeError{Message: "copy to container failed", Err: err}
	}
	return nil
}

func (r *DockerRuntime) GetArchive(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	rc, _, err := r.cli.CopyFromContainer(ctx, containerID, srcPath)
	if err != nil {
		return nil, &livepusherr.RuntimeError{Message: "copy from container failed", Err: err}
	}
	return rc, nil
}

// Exec runs cmd inside the container with no environment and no output
// streaming, collecting the whole of stdout/stderr before returning. Used
// for the short probing execs (test -d, cat, stat) the stage-copy engine
// issues, which have no caller interested in incremental output.
func (r *DockerRuntime) Exec(ctx context.Context, containerID string, cmd []string) (ExecResult, error) {
	return r.exec(ctx, containerID, cmd, nil, nil)
}

// ExecStream runs cmd with the given K=V environment, invoking onChunk for
// every demuxed frame as it arrives (4.6.2's commandOutput events), in
// addition to returning the fully collected result once the stream drains.
func (r *DockerRuntime) ExecStream(ctx context.Context, containerID string, cmd, env []string, onChunk func(data []byte, isStderr bool)) (ExecResult, error) {
	return r.exec(ctx, containerID, cmd, env, onChunk)
}

func (r *DockerRuntime) exec(ctx context.Context, containerID string, cmd, env []string, onChunk func(data []byte, isStderr bool)) (ExecResult, error) {
	created, err := r.cli.ContainerExecCreate(ctx, containerID, apicontainer.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, &livepusherr.RuntimeError{Message: "exec create failed", Err: err}
	}

	attached, err := r.cli.ContainerExecAttach(ctx, created.ID, apicontainer.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, &livepusherr.RuntimeError{Message: "exec attach failed", Err: err}
	}
	defer attached.Close()

	stdout := &chunkWriter{onChunk: onChunk, isStderr: false}
	stderr := &chunkWriter{onChunk: onChunk, isStderr: true}
	if _, err := stdcopy.StdCopy(stdout, stderr, attached.Reader); err != nil && err != io.EOF {
		return ExecResult{}, &livepusherr.RuntimeError{Message: "exec stream demux failed", Err: err}
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, &livepusherr.RuntimeError{Message: "exec inspect failed", Err: err}
	}

	return ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.buf.Bytes(),
		Stderr:   stderr.buf.Bytes(),
	}, nil
}

// chunkWriter accumulates the full stream while forwarding each write (one
// per demuxed frame) to onChunk, if set.
type chunkWriter struct {
	buf      bytes.Buffer
	isStderr bool
	onChunk  func(data []byte, isStderr bool)
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if w.onChunk != nil {
		w.onChunk(p, w.isStderr)
	}
	return len(p), nil
}

func (r *DockerRuntime) Kill(ctx context.Context, containerID, signal string) error {
	if err := r.cli.ContainerKill(ctx, containerID, signal); err != nil {
		return &livepusherr.RuntimeError{Message: "container kill failed", Err: err}
	}
	return nil
}

func (r *DockerRuntime) Start(ctx context.Context, containerID string) error {
	if err := r.cli.ContainerStart(ctx, containerID, apicontainer.StartOptions{}); err != nil {
		return &livepusherr.RuntimeError{Message: "container start failed", Err: err}
	}
	return nil
}

func (r *DockerRuntime) Remove(ctx context.Context, containerID string, force bool) error {
	if err := r.cli.ContainerRemove(ctx, containerID, apicontainer.RemoveOptions{Force: force}); err != nil {
		return &livepusherr.RuntimeError{Message: "container remove failed", Err: err}
	}
	return nil
}
