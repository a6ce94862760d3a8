package models

// AboutInfo is shown on the Copyright screen.
type AboutInfo struct {
	Version   string    `json:"version"`
	GoVersion string    `json:"go_version"`
	Host      *HostInfo `json:"host,omitempty"`
}

// HostInfo describes the machine the console runs on.
type HostInfo struct {
	Hostname        string       `json:"hostname"`
	OS              string       `json:"os"`
	Platform        string       `json:"platform"`
	PlatformVersion string       `json:"platform_version"`
	KernelVersion   string       `json:"kernel_version"`
	Uptime          string       `json:"uptime"`
	UptimeSeconds   uint64       `json:"uptime_seconds"`
	LoadAverages    LoadAverages `json:"load_averages"`
	Memory          MemoryInfo   `json:"memory"`
}

// LoadAverages represents system load information.
type LoadAverages struct {
	Load1  float64 `json:"load_1"`
	Load5  float64 `json:"load_5"`
	Load15 float64 `json:"load_15"`
}

// MemoryInfo represents memory usage information.
type MemoryInfo struct {
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`
}
