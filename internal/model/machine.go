package model

import "time"

// MachineState is a node in the machine lifecycle state machine (spec §4.5.e).
type MachineState string

const (
	StateCreated    MachineState = "created"
	StateStarting   MachineState = "starting"
	StateStarted    MachineState = "started"
	StateStopping   MachineState = "stopping"
	StateStopped    MachineState = "stopped"
	StateDestroying MachineState = "destroying"
	StateDestroyed  MachineState = "destroyed"
	StateSuspending MachineState = "suspending"
	StateSuspended  MachineState = "suspended"
)

// ImageRef is a parsed OCI image reference.
type ImageRef struct {
	Registry   string `json:"registry"`
	Repository string `json:"repository"`
	Tag        string `json:"tag"`
	Digest     string `json:"digest,omitempty"`
}

// Event is an append-only entry in a Machine's audit trail.
type Event struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

// Machine is one container representing a compute instance.
type Machine struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	AppName    string       `json:"app_name"`
	State      MachineState `json:"state"`
	Region     string       `json:"region"`
	ImageRef   ImageRef     `json:"image_ref"`
	InstanceID string       `json:"instance_id"`
	PrivateIP  string       `json:"private_ip"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	Config     MachineConfig `json:"config"`
	Events     []Event      `json:"events"`

	// ContainerID is the Docker container backing this machine. Not part
	// of the Fly wire shape; used internally by handlers and the runtime
	// adapter.
	ContainerID string `json:"-"`
}

// AddEvent appends an event with the given type/status/source, stamped
// with now in unix milliseconds.
func (m *Machine) AddEvent(eventType, status, source string, now time.Time) {
	m.Events = append(m.Events, Event{
		Type:      eventType,
		Status:    status,
		Source:    source,
		Timestamp: now.UnixMilli(),
	})
}
