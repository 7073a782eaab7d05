package daemon

import "github.com/TheAlem/Torneria-Montero-Back-sub000/internal/config"

// StartOptions configures the daemon (home, engine config, pprof, demo seed).
type StartOptions struct {
	Home      string
	Config    config.Config
	PprofAddr string
	Seed      bool // seed demo data on an empty sqlite store
}

// StatusInfo is the result of Status (running or not, PID, metrics addr).
type StatusInfo struct {
	Running bool
	PID     int
	Addr    string
}
