package usage

import "time"

// StateActive is the reported state of a running compute instance.
const StateActive = "active"

// ServerUsage is one entry of a tenant's compute usage report.
// MemoryMB and VCPUs are required by the data source contract. Cached
// reports keep only these fields.
type ServerUsage struct {
	InstanceID string     `json:"instance_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Flavor     string     `json:"flavor,omitempty"`
	State      string     `json:"state"`
	MemoryMB   *float64   `json:"memory_mb"`
	VCPUs      *float64   `json:"vcpus"`
	Hours      float64    `json:"hours,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Summary aggregates the active instances of a usage report.
type Summary struct {
	Total int     `json:"total"`
	RAM   float64 `json:"ram"`
	VCPUs float64 `json:"vcpus"`
}

// Window is a reporting period. Zero bounds fall back to the default
// window: the first of the current month until today, both at midnight.
type Window struct {
	Start time.Time
	End   time.Time
}
