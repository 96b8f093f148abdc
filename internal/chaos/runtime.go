package chaos

import (
	"context"
	"strings"

	apperrors "task-recipes/internal/common/errors"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Container is the part of a running container the havoc loop looks at.
type Container struct {
	ID   string
	Name string
}

// ContainerRuntime lists, restarts and execs into containers.
type ContainerRuntime interface {
	List(ctx context.Context) ([]Container, error)
	Restart(ctx context.Context, id string, timeoutSeconds int) error
	Exec(ctx context.Context, id string, cmd []string) error
}

// DockerRuntime talks to the Docker Engine API.
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime connects using DOCKER_HOST and friends.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperrors.NewContainerRuntimeError("connect", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

func (d *DockerRuntime) Close() error { return d.cli.Close() }

func (d *DockerRuntime) List(ctx context.Context) ([]Container, error) {
	list, err := d.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, apperrors.NewContainerRuntimeError("list", err)
	}
	out := make([]Container, 0, len(list))
	for _, c := range list {
		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, Container{ID: c.ID, Name: name})
	}
	return out, nil
}

func (d *DockerRuntime) Restart(ctx context.Context, id string, timeoutSeconds int) error {
	if err := d.cli.ContainerRestart(ctx, id, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		return apperrors.NewContainerRuntimeError("restart", err)
	}
	return nil
}

// Exec runs cmd detached in the container.
func (d *DockerRuntime) Exec(ctx context.Context, id string, cmd []string) error {
	exec, err := d.cli.ContainerExecCreate(ctx, id, types.ExecConfig{Cmd: cmd, Detach: true})
	if err != nil {
		return apperrors.NewContainerRuntimeError("exec", err)
	}
	if err := d.cli.ContainerExecStart(ctx, exec.ID, types.ExecStartCheck{Detach: true}); err != nil {
		return apperrors.NewContainerRuntimeError("exec", err)
	}
	return nil
}

// matching returns the containers whose name contains pattern.
func matching(containers []Container, pattern string) []Container {
	var out []Container
	for _, c := range containers {
		if strings.Contains(c.Name, pattern) {
			out = append(out, c)
		}
	}
	return out
}
