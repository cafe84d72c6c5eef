// Package orchestrator is the collaborator that actually starts, stops, and
// reports instance containers. Lifecycle and inspection go through the Docker
// engine API; creating services and building the backend image defer to
// docker compose, which owns the manifest.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// managedLabel matches the label the manifest linker stamps on every
// instance service, so the running set can be filtered to containers we own.
const managedLabel = "burrow.managed=true"

// Instance is a live container as the orchestrator sees it.
type Instance struct {
	Name     string
	State    string // running, exited, absent, ...
	HostPort int    // published host port, 0 when not running
}

// Docker manages instance containers via the engine API and docker compose.
type Docker struct {
	cli         *client.Client
	composePath string
	project     string
}

// NewDocker creates an orchestrator bound to one compose project.
func NewDocker(composePath, project string) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Docker{
		cli:         cli,
		composePath: composePath,
		project:     project,
	}, nil
}

// Ping checks that the docker daemon is reachable.
func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return nil
}

// Start brings the named instance up via compose, creating the container
// from its manifest service block when it does not exist yet.
func (d *Docker) Start(ctx context.Context, name string) error {
	return d.compose(ctx, "up", "-d", "--no-build", name)
}

// Stop stops the named instance container. A container that is already gone
// is not an error; the goal is only that it is not running.
func (d *Docker) Stop(ctx context.Context, name string) error {
	if err := d.cli.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		if client.IsErrNotFound(err) {
			log.Printf("Orchestrator: container %q not found during stop (already stopped/removed)", name)
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", name, err)
	}
	return nil
}

// Remove stops and removes the named instance container.
func (d *Docker) Remove(ctx context.Context, name string) error {
	if err := d.Stop(ctx, name); err != nil {
		return err
	}
	if err := d.cli.ContainerRemove(ctx, name, container.RemoveOptions{RemoveVolumes: false}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	log.Printf("Orchestrator: container %q stopped and removed", name)
	return nil
}

// Restart restarts the named instance container.
func (d *Docker) Restart(ctx context.Context, name string) error {
	if err := d.cli.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", name, err)
	}
	return nil
}

// ListRunning returns the currently running managed instances.
func (d *Docker) ListRunning(ctx context.Context) ([]Instance, error) {
	args := filters.NewArgs(filters.Arg("label", managedLabel))
	summaries, err := d.cli.ContainerList(ctx, container.ListOptions{Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	instances := make([]Instance, 0, len(summaries))
	for _, summary := range summaries {
		name := containerName(summary.Names)
		inst := Instance{Name: name, State: summary.State}
		if detail, err := d.Status(ctx, name); err == nil {
			inst.HostPort = detail.HostPort
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Status inspects one instance container. A missing container reports state
// "absent" rather than an error.
func (d *Docker) Status(ctx context.Context, name string) (Instance, error) {
	inspect, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return Instance{Name: name, State: "absent"}, nil
		}
		return Instance{}, fmt.Errorf("failed to inspect container %s: %w", name, err)
	}

	inst := Instance{Name: name, State: inspect.State.Status}
	if inspect.NetworkSettings != nil {
		for _, bindings := range inspect.NetworkSettings.Ports {
			if len(bindings) == 0 || bindings[0].HostPort == "" {
				continue
			}
			if port, err := nat.ParsePort(bindings[0].HostPort); err == nil {
				inst.HostPort = port
				break
			}
		}
	}
	return inst, nil
}

// Logs streams the instance container's logs to stdout/stderr. With follow
// set it blocks until the context is cancelled or the container exits.
func (d *Docker) Logs(ctx context.Context, name string, follow bool) error {
	reader, err := d.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Tail:       "100",
	})
	if err != nil {
		return fmt.Errorf("failed to get logs for %s: %w", name, err)
	}
	defer reader.Close()

	// Engine log streams are multiplexed; demux onto our own stdio.
	if _, err := stdcopy.StdCopy(os.Stdout, os.Stderr, reader); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to stream logs for %s: %w", name, err)
	}
	return nil
}

// Build builds the backend image through compose.
func (d *Docker) Build(ctx context.Context) error {
	return d.compose(ctx, "build")
}

// compose runs a docker compose subcommand against the managed manifest.
func (d *Docker) compose(ctx context.Context, args ...string) error {
	full := append([]string{"compose", "-f", d.composePath, "-p", d.project}, args...)
	cmd := exec.CommandContext(ctx, "docker", full...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s failed: %w\n%s", strings.Join(full, " "), err, strings.TrimSpace(string(output)))
	}
	return nil
}

// containerName strips the leading slash the engine API puts on names.
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
