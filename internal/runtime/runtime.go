// Package runtime wraps the Docker daemon: building a container spec
// from a MachineConfig, image pulls, lifecycle operations, inspection,
// log streaming and label-scoped discovery (spec §4.1, component C1).
package runtime

import (
	"context"
	"io"
)

// ContainerState is the subset of Docker's reported state this adapter
// surfaces to callers.
type ContainerState struct {
	Status  string // "running", "exited", "created", ...
	Running bool
}

// NetworkInfo is the discovered network configuration of a running
// container.
type NetworkInfo struct {
	IPv4  string
	Ports map[int]int // container port -> host port
}

// InspectResult is what callers need after create/start: the assigned
// network address and ports.
type InspectResult struct {
	State    ContainerState
	Networks NetworkInfo
}

// ContainerSummary is one entry of a List() call.
type ContainerSummary struct {
	ID     string
	Name   string
	Labels map[string]string
	State  string
}

// LogChunk is one frame of streamed container output.
type LogChunk struct {
	Stream string // "stdout" or "stderr"
	Bytes  []byte
}

// Runtime is the container-backend capability this control plane
// consumes. The only implementation is the Docker-backed adapter in
// docker.go; tests use a fake satisfying this interface.
type Runtime interface {
	// Create builds a container spec from cfg and asks the backend to
	// create (but not start) it. Returns the backend container id.
	Create(ctx context.Context, machineID, appName string, cfg CreateConfig) (string, error)

	Start(ctx context.Context, containerID string) error

	// Stop asks the container to stop, allowing timeoutSeconds before
	// a forced kill.
	Stop(ctx context.Context, containerID string, timeoutSeconds int) error

	// Remove deletes the container. If force is false, a running
	// container is not removed.
	Remove(ctx context.Context, containerID string, force bool) error

	Inspect(ctx context.Context, containerID string) (InspectResult, error)

	// List returns containers matching filters (Docker label filter
	// syntax, e.g. {"label": {"minifly.managed=true"}}).
	List(ctx context.Context, filters map[string][]string) ([]ContainerSummary, error)

	// StreamLogs returns a ReadCloser of raw log bytes; callers demux
	// stdout/stderr themselves when the stream is multiplexed (Docker's
	// attach/logs wire format), as internal/api/handlers' demuxLines does.
	StreamLogs(ctx context.Context, containerID string, follow bool, tailLines int, timestamps bool) (io.ReadCloser, error)

	// FindByMachineID looks up the container labeled with machineID,
	// returning ("", false) if none exists.
	FindByMachineID(ctx context.Context, machineID string) (string, bool, error)

	// Ping verifies the Docker daemon is reachable (used by health
	// checks and the dependency manager).
	Ping(ctx context.Context) error

	// Version reports the daemon's version string (used by the
	// comprehensive health check).
	Version(ctx context.Context) (string, error)
}
