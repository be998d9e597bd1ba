package monitor

import "time"

// ComponentStatus is the last check result for one dependency.
type ComponentStatus struct {
	Healthy bool          `json:"healthy"`
	Error   string        `json:"error,omitempty"`
	Detail  *int          `json:"detail,omitempty"` // check-specific figure, e.g. stored objects
	Latency time.Duration `json:"latency_ns"`
}

type Status struct {
	Components map[string]ComponentStatus `json:"components"`
	LastCheck  time.Time                  `json:"last_check"`
}

// Healthy reports whether every component passed its last check.
func (s Status) Healthy() bool {
	if len(s.Components) == 0 {
		return false
	}
	for _, c := range s.Components {
		if !c.Healthy {
			return false
		}
	}
	return true
}
