package containerctl

import (
	"bytes"
	"context"
	"io"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// DockerContainerCtl is the production ContainerCtl, backed by the local
// Docker daemon socket, constructed the way the teacher's
// environment.Docker() does.
type DockerContainerCtl struct {
	cli *client.Client
}

// NewDockerContainerCtl dials the daemon via the environment the same
// way the teacher's non-Linux Docker() fallback does, since that was
// the only client-construction call site retrieved.
func NewDockerContainerCtl() (*DockerContainerCtl, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "creating docker client")
	}
	return &DockerContainerCtl{cli: cli}, nil
}

func (d *DockerContainerCtl) Start(ctx context.Context, containerName string) error {
	log.WithField("container", containerName).Info("starting container")
	if err := d.cli.ContainerStart(ctx, containerName, container.StartOptions{}); err != nil {
		return errors.Wrapf(err, "starting container %s", containerName)
	}
	return nil
}

func (d *DockerContainerCtl) Stop(ctx context.Context, containerName string, graceSeconds int) error {
	log.WithField("container", containerName).WithField("grace_s", graceSeconds).Info("stopping container")
	timeout := graceSeconds
	if err := d.cli.ContainerStop(ctx, containerName, container.StopOptions{Timeout: &timeout}); err != nil {
		return errors.Wrapf(err, "stopping container %s", containerName)
	}
	return nil
}

func (d *DockerContainerCtl) State(ctx context.Context, containerName string) (Status, error) {
	info, err := d.cli.ContainerInspect(ctx, containerName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return Status{State: StateAbsent}, nil
		}
		return Status{}, errors.Wrapf(err, "inspecting container %s", containerName)
	}

	st := Status{}
	switch {
	case info.State.Running:
		st.State = StateRunning
	case info.State.Status == "created":
		st.State = StateCreated
	default:
		st.State = StateExited
	}
	if info.State.Health != nil {
		switch info.State.Health.Status {
		case "starting":
			st.Health = HealthStarting
		case "healthy":
			st.Health = HealthHealthy
		case "unhealthy":
			st.Health = HealthUnhealthy
		}
	}
	if info.NetworkSettings != nil {
		st.Ports = make(nat.PortMap, len(info.NetworkSettings.Ports))
		for port, bindings := range info.NetworkSettings.Ports {
			st.Ports[nat.Port(port)] = bindings
		}
	}
	return st, nil
}

func (d *DockerContainerCtl) Exec(ctx context.Context, containerName string, command []string) (string, error) {
	execResp, err := d.cli.ContainerExecCreate(ctx, containerName, container.ExecOptions{
		Cmd:          command,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", errors.Wrapf(err, "creating exec in container %s", containerName)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", errors.Wrapf(err, "attaching exec in container %s", containerName)
	}
	defer attach.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, attach.Reader); err != nil {
		return "", errors.Wrap(err, "reading exec output")
	}
	return buf.String(), nil
}

var _ ContainerCtl = (*DockerContainerCtl)(nil)
