// Package v1 holds the wire types of the QPU service REST API.
//
//	GET    /api/v1/backends    list the backends
//	POST   /api/v1/jobs        submit a circuit
//	GET    /api/v1/jobs/{id}   poll a job
//	DELETE /api/v1/jobs/{id}   cancel a job
package v1

const (
	BackendsPath = "/api/v1/backends"
	JobsPath     = "/api/v1/jobs"

	// InstanceHeader selects the provider instance the API key belongs to.
	InstanceHeader = "X-QRNG-Instance"
)

type Backend struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Operational bool   `json:"operational"`
	QueueDepth  *int   `json:"queueDepth,omitempty"`
}

type BackendList struct {
	Backends []Backend `json:"backends"`
}

type JobCreate struct {
	Backend string `json:"backend" validate:"required,backend_name"`
	// Program is an OpenQASM 2.0 program.
	Program   string `json:"program" validate:"required,openqasm"`
	BitLength int    `json:"bitLength" validate:"min=8,max=256"`
	Shots     int    `json:"shots" validate:"eq=1"`
}

type JobStatus struct {
	ID      string `json:"id"`
	Backend string `json:"backend"`
	Status  string `json:"status"`
	Bits    string `json:"bits,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}
