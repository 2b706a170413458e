// Package containerctl abstracts the local container runtime behind the
// narrow start/stop/state/exec surface wakegate's lifecycle manager needs,
// grounded on the teacher's client construction and the richer Docker
// service example's start/stop/inspect/exec call shapes.
package containerctl

import (
	"context"

	"github.com/docker/go-connections/nat"
)

// State is the coarse lifecycle state Docker reports for a container.
type State string

const (
	StateAbsent  State = "absent"
	StateCreated State = "created"
	StateRunning State = "running"
	StateExited  State = "exited"
)

// Health mirrors a container's HEALTHCHECK status, when one is configured.
type Health string

const (
	HealthNone      Health = ""
	HealthStarting  Health = "starting"
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
)

// Status is the result of an inspect call.
type Status struct {
	State  State
	Health Health

	// Ports is the container's published port bindings, keyed the way
	// nat.PortMap reports them ("25565/tcp" -> host bindings), used to
	// cross-check a ServerConfig's declared InternalPort against what
	// the runtime actually published.
	Ports nat.PortMap
}

// ContainerCtl is the interface the Lifecycle Manager and Readiness
// Prober depend on; DockerContainerCtl and FakeContainerCtl both
// implement it.
type ContainerCtl interface {
	// Start is idempotent; it returns once the runtime has accepted the
	// start request, not once the server is game-ready.
	Start(ctx context.Context, containerName string) error

	// Stop sends a graceful stop, escalating to kill after graceSeconds.
	Stop(ctx context.Context, containerName string, graceSeconds int) error

	// State reports the container's current lifecycle state and health.
	State(ctx context.Context, containerName string) (Status, error)

	// Exec runs command inside the container and returns combined output.
	Exec(ctx context.Context, containerName string, command []string) (string, error)
}
