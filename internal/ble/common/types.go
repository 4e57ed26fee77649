// Package common holds the BLE peer data model shared by the transport
// (C4), router (C5), offline ledger (C6), and mesh manager (C7), mirroring
// how the teacher's kernel/core/mesh/common package centralizes types
// shared across its mesh subpackages.
package common

import "time"

// DeviceType enumerates the BLE peer capability's device_type field.
type DeviceType string

const (
	DevicePhone       DeviceType = "phone"
	DeviceLaptop      DeviceType = "laptop"
	DeviceWorkstation DeviceType = "workstation"
)

// PeerCapability is the BLE peer capability record from spec §3.
type PeerCapability struct {
	AgentID         string     `json:"agent_id"`
	Model           string     `json:"model"`
	ModelParamSize  float64    `json:"model_param_size"` // billions of parameters
	MemoryMB        int        `json:"memory_mb"`
	BatteryPct      int        `json:"battery_pct"`
	CurrentLoad     int        `json:"current_load"`
	DeviceType      DeviceType `json:"device_type"`
	RSSI            float64    `json:"rssi"`
	TaskSuccessCount uint64    `json:"task_success_count"`
	TaskFailCount   uint64     `json:"task_fail_count"`
	MeshTokenHash   string     `json:"mesh_token_hash,omitempty"`
	LastSeen        time.Time  `json:"-"`
}

// FailRatio returns the peer's advertised fail/total ratio, 0 when no
// tasks have been recorded yet.
func (p PeerCapability) FailRatio() float64 {
	total := p.TaskSuccessCount + p.TaskFailCount
	if total == 0 {
		return 0
	}
	return float64(p.TaskFailCount) / float64(total)
}

// Identity is the GATT identity characteristic payload (read-only), read
// once per discovered peer per spec §4.4.
type Identity struct {
	AgentID        string  `json:"agent_id"`
	Model          string  `json:"model"`
	ModelParamSize float64 `json:"model_param_size"`
	MeshTokenHash  string  `json:"mesh_token_hash,omitempty"`
}

// TaskRequest is written to the task_request characteristic.
type TaskRequest struct {
	TaskID     string `json:"task_id"`
	Kind       string `json:"kind"`
	Language   string `json:"language"`
	Input      string `json:"input"`
	TimeoutMs  int64  `json:"timeout_ms"`
	CPUSeconds float64 `json:"cpu_seconds,omitempty"`
}

// TaskResponse is notified back on the task_response characteristic.
type TaskResponse struct {
	Status     string  `json:"status"` // "completed" or "failed"
	Output     string  `json:"output,omitempty"`
	Error      string  `json:"error,omitempty"`
	CPUSeconds float64 `json:"cpu_seconds"`
	DurationMs int64   `json:"duration_ms"`
}

// StaleAfter is the BLE peer eviction TTL from spec §3.
const StaleAfter = 60 * time.Second
